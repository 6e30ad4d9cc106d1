package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/phoneotp/server/internal/model"
	"github.com/phoneotp/server/internal/repo"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]model.User
	nextID int64
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]model.User)}
}

func (f *fakeUsers) FindOrCreate(_ context.Context, phone string, profile model.Profile) (model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.User{}, false, f.err
	}
	for _, u := range f.byID {
		if u.PhoneNumber == phone {
			return u, false, nil
		}
	}
	f.nextID++
	u := model.User{ID: f.nextID, PhoneNumber: phone, CreatedAt: time.Now()}
	if profile.FirstName != "" {
		u.FirstName = &profile.FirstName
	}
	if profile.LastName != "" {
		u.LastName = &profile.LastName
	}
	f.byID[u.ID] = u
	return u, true, nil
}

func (f *fakeUsers) GetByPhone(_ context.Context, phone string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.User{}, f.err
	}
	for _, u := range f.byID {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

type fakeOtps struct {
	mu       sync.Mutex
	codes    []model.OtpCode
	storeErr error
	countErr error
}

func (f *fakeOtps) Store(_ context.Context, userID int64, code string, expiresAt time.Time) (model.OtpCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return model.OtpCode{}, f.storeErr
	}
	c := model.OtpCode{
		ID:        int64(len(f.codes) + 1),
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.codes = append(f.codes, c)
	return c, nil
}

func (f *fakeOtps) match(userID int64, code string, now time.Time) int {
	for i := len(f.codes) - 1; i >= 0; i-- {
		c := f.codes[i]
		if c.UserID == userID && c.Code == code && c.ConsumedAt == nil && now.Before(c.ExpiresAt) {
			return i
		}
	}
	return -1
}

func (f *fakeOtps) FindValid(_ context.Context, userID int64, code string, now time.Time) (model.OtpCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.match(userID, code, now)
	if i < 0 {
		return model.OtpCode{}, repo.ErrNotFound
	}
	return f.codes[i], nil
}

func (f *fakeOtps) Consume(_ context.Context, userID int64, code string, now time.Time) (model.OtpCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.match(userID, code, now)
	if i < 0 {
		return model.OtpCode{}, repo.ErrNotFound
	}
	t := now
	f.codes[i].ConsumedAt = &t
	return f.codes[i], nil
}

func (f *fakeOtps) CountWithin(_ context.Context, userID int64, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	since := time.Now().Add(-window)
	n := 0
	for _, c := range f.codes {
		if c.UserID == userID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeOtps) all() []model.OtpCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.OtpCode(nil), f.codes...)
}

type sentMessage struct {
	to, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

var errDB = errors.New("connection refused")
