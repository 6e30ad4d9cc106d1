package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/logger"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/model"
	"github.com/phoneotp/server/internal/ratelimit"
	"github.com/phoneotp/server/internal/repo"
)

const (
	// VerifyAttemptWindow and VerifyAttemptMax bound verify-code attempts per phone.
	VerifyAttemptWindow = 10 * time.Minute
	VerifyAttemptMax    = 5
)

// Signer issues a credential for a user id.
type Signer interface {
	Sign(userID int64) (model.Credential, error)
}

// Verifier checks submitted codes and exchanges them for credentials.
type Verifier struct {
	users     repo.UserRepo
	otps      repo.OtpRepo
	tokens    Signer
	attempts  ratelimit.Limiter
	singleUse bool
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewVerifier creates a Verifier. With singleUse a matched code is consumed
// and cannot be replayed; otherwise it stays valid until it expires.
// attempts counts every verification per phone number; once it refuses,
// even the correct code is rejected until the window passes.
func NewVerifier(users repo.UserRepo, otps repo.OtpRepo, tokens Signer, attempts ratelimit.Limiter, singleUse bool, log *zap.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{
		users:     users,
		otps:      otps,
		tokens:    tokens,
		attempts:  attempts,
		singleUse: singleUse,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// Verify looks up the user for phone and checks code against its unexpired codes.
func (v *Verifier) Verify(ctx context.Context, phone, code string) (model.Credential, error) {
	ok, err := v.attempts.Allow(ctx, "verify:"+phone)
	if err != nil {
		// fail closed
		v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeStorage).Inc()
		return model.Credential{}, &StorageError{Op: "count verify attempts", Err: err}
	}
	if !ok {
		v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeLocked).Inc()
		v.log.Warn("verify attempts exhausted", logger.Phone(phone))
		return model.Credential{}, ErrTooManyAttempts
	}

	user, err := v.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return model.Credential{}, ErrUserNotFound
		}
		v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeStorage).Inc()
		return model.Credential{}, &StorageError{Op: "get user", Err: err}
	}

	now := v.now()
	if v.singleUse {
		_, err = v.otps.Consume(ctx, user.ID, code, now)
	} else {
		_, err = v.otps.FindValid(ctx, user.ID, code, now)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeInvalid).Inc()
			v.log.Info("otp rejected", logger.Phone(phone), zap.Int64("user_id", user.ID))
			return model.Credential{}, ErrInvalidOrExpiredCode
		}
		v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeStorage).Inc()
		return model.Credential{}, &StorageError{Op: "match otp", Err: err}
	}

	cred, err := v.tokens.Sign(user.ID)
	if err != nil {
		v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeSignFailure).Inc()
		return model.Credential{}, fmt.Errorf("sign credential: %w", err)
	}

	v.metrics.OTPVerified.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return cred, nil
}
