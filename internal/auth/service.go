package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/logger"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/model"
	"github.com/phoneotp/server/internal/phone"
	"github.com/phoneotp/server/internal/ratelimit"
	"github.com/phoneotp/server/internal/repo"
)

const (
	phoneSendWindow = 10 * time.Minute
	phoneSendMax    = 3
)

// SendCodeInput is the send-code request after decoding.
type SendCodeInput struct {
	PhoneNumber string
	FirstName   string
	LastName    string
}

// SendCodeResult describes the issued code. Code is exposed only so dev
// builds can echo it back.
type SendCodeResult struct {
	UserID      int64
	PhoneNumber string
	Code        string
	Created     bool
}

// AuthService orchestrates the send-code and verify-code flows
type AuthService struct {
	normalizer   *phone.Normalizer
	users        repo.UserRepo
	otps         repo.OtpRepo
	issuer       *Issuer
	verifier     *Verifier
	phoneLimiter ratelimit.Limiter
	log          *zap.Logger
	metrics      *metrics.Metrics
}

// NewAuthService creates a new auth service. phoneLimiter may be nil, in
// which case per-phone limits are counted from the otps table.
func NewAuthService(
	normalizer *phone.Normalizer,
	users repo.UserRepo,
	otps repo.OtpRepo,
	issuer *Issuer,
	verifier *Verifier,
	phoneLimiter ratelimit.Limiter,
	log *zap.Logger,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		normalizer:   normalizer,
		users:        users,
		otps:         otps,
		issuer:       issuer,
		verifier:     verifier,
		phoneLimiter: phoneLimiter,
		log:          log,
		metrics:      m,
	}
}

// SendCode finds or creates the user for the phone number and issues a code.
func (s *AuthService) SendCode(ctx context.Context, in SendCodeInput) (SendCodeResult, error) {
	normalized, err := s.normalizer.Normalize(in.PhoneNumber)
	if err != nil {
		return SendCodeResult{}, ErrInvalidPhone
	}

	countFromLedger := s.phoneLimiter == nil
	if s.phoneLimiter != nil {
		ok, err := s.phoneLimiter.Allow(ctx, "phone:"+normalized)
		if err != nil {
			// limiter store down; fall back to the ledger count below
			s.log.Warn("phone limiter unavailable", logger.Phone(normalized), zap.Error(err))
			countFromLedger = true
		} else if !ok {
			s.metrics.OTPIssued.WithLabelValues(metrics.OutcomeRateLimited).Inc()
			return SendCodeResult{}, ErrRateLimited
		}
	}

	user, created, err := s.users.FindOrCreate(ctx, normalized, model.Profile{
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		s.metrics.OTPIssued.WithLabelValues(metrics.OutcomeStorage).Inc()
		return SendCodeResult{}, &StorageError{Op: "find or create user", Err: err}
	}
	if created {
		s.metrics.UsersCreated.Inc()
		s.log.Info("user created", zap.Int64("user_id", user.ID), logger.Phone(normalized))
	}

	// Check-then-insert: concurrent requests can overshoot phoneSendMax here.
	if countFromLedger && !created {
		n, err := s.otps.CountWithin(ctx, user.ID, phoneSendWindow)
		if err != nil {
			s.metrics.OTPIssued.WithLabelValues(metrics.OutcomeStorage).Inc()
			return SendCodeResult{}, &StorageError{Op: "count otps", Err: err}
		}
		if n >= phoneSendMax {
			s.metrics.OTPIssued.WithLabelValues(metrics.OutcomeRateLimited).Inc()
			return SendCodeResult{}, ErrRateLimited
		}
	}

	res := SendCodeResult{UserID: user.ID, PhoneNumber: normalized, Created: created}
	iss, err := s.issuer.Issue(ctx, user)
	res.Code = iss.Code.Code
	return res, err
}

// VerifyCode exchanges a valid code for a credential.
func (s *AuthService) VerifyCode(ctx context.Context, rawPhone, code string) (model.Credential, error) {
	normalized, err := s.normalizer.Normalize(rawPhone)
	if err != nil {
		// an unparseable number cannot belong to any user
		s.metrics.OTPVerified.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return model.Credential{}, ErrUserNotFound
	}
	return s.verifier.Verify(ctx, normalized, code)
}
