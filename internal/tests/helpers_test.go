package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/auth"
	"github.com/phoneotp/server/internal/db"
	httphandler "github.com/phoneotp/server/internal/http"
	"github.com/phoneotp/server/internal/http/handlers"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/phone"
	"github.com/phoneotp/server/internal/ratelimit"
	"github.com/phoneotp/server/internal/repo"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

// openTestDB connects to DATABASE_URL, migrates and truncates, or skips the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, databaseURL, zap.NewNop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, PrepareDatabase(ctx, database))
	return database
}

type capturedSMS struct {
	To   string
	Body string
}

// captureSender records messages instead of sending them.
type captureSender struct {
	mu   sync.Mutex
	msgs []capturedSMS
	err  error
}

func (c *captureSender) Send(_ context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, capturedSMS{To: to, Body: body})
	return nil
}

func (c *captureSender) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *captureSender) sent() []capturedSMS {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedSMS(nil), c.msgs...)
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Sender *captureSender
	Tokens *auth.TokenService
}

func newTestServer(t *testing.T, singleUse bool) *testServer {
	t.Helper()
	database := openTestDB(t)
	log := zap.NewNop()
	m := metrics.New()

	userRepo := repo.NewUserRepo(database, 5*time.Second)
	otpRepo := repo.NewOtpRepo(database, 5*time.Second)
	sender := &captureSender{}
	tokens := auth.NewTokenService(testSecret, time.Hour)
	attempts := ratelimit.NewMemoryLimiter(auth.VerifyAttemptWindow, auth.VerifyAttemptMax)
	t.Cleanup(attempts.Close)

	svc := auth.NewAuthService(
		phone.NewNormalizer(phone.DefaultCountryCode),
		userRepo,
		otpRepo,
		auth.NewIssuer(otpRepo, sender, log, m),
		auth.NewVerifier(userRepo, otpRepo, tokens, attempts, singleUse, log, m),
		nil,
		log,
		m,
	)

	sendLimiter := ratelimit.NewMemoryLimiter(10*time.Minute, 100)
	verifyLimiter := ratelimit.NewMemoryLimiter(10*time.Minute, 100)
	t.Cleanup(sendLimiter.Close)
	t.Cleanup(verifyLimiter.Close)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:          handlers.NewAuthHandler(svc, true, log),
		Tokens:        tokens,
		Users:         userRepo,
		SendLimiter:   sendLimiter,
		VerifyLimiter: verifyLimiter,
		Metrics:       m,
		Log:           log,
		AllowedOrigin: []string{"*"},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Sender: sender, Tokens: tokens}
}

func (s *testServer) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	return s.postJSONFrom(t, path, body, "")
}

// postJSONFrom posts body with forwardedFor as X-Forwarded-For when set.
func (s *testServer) postJSONFrom(t *testing.T, path string, body any, forwardedFor string) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.Server.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *testServer) get(t *testing.T, path, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.Server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}
