package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/logger"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/model"
	"github.com/phoneotp/server/internal/repo"
	"github.com/phoneotp/server/internal/sms"
)

const (
	otpLength = 6
	otpExpiry = 5 * time.Minute
	otpMin    = 100000
	otpSpan   = 900000
)

var otpSpanBig = big.NewInt(otpSpan)

// Issuance is the outcome of Issue. Code is set whenever the code was
// persisted; DeliveryErr is set when the SMS could not be sent.
type Issuance struct {
	Code        model.OtpCode
	DeliveryErr error
}

// Issuer generates, persists and delivers codes.
type Issuer struct {
	otps    repo.OtpRepo
	sender  sms.Sender
	log     *zap.Logger
	metrics *metrics.Metrics

	now    func() time.Time
	random io.Reader
}

// NewIssuer creates an Issuer backed by the given ledger and sender.
func NewIssuer(otps repo.OtpRepo, sender sms.Sender, log *zap.Logger, m *metrics.Metrics) *Issuer {
	return &Issuer{
		otps:    otps,
		sender:  sender,
		log:     log,
		metrics: m,
		now:     time.Now,
		random:  rand.Reader,
	}
}

// Issue persists a fresh code for user and then sends it. Persistence
// failures return a StorageError and nothing is sent. Delivery failures
// return a DeliveryError together with an Issuance carrying the stored code.
func (i *Issuer) Issue(ctx context.Context, user model.User) (Issuance, error) {
	code, err := generateCode(i.random)
	if err != nil {
		i.metrics.OTPIssued.WithLabelValues(metrics.OutcomeStorage).Inc()
		return Issuance{}, fmt.Errorf("generate otp: %w", err)
	}

	expiresAt := i.now().Add(otpExpiry)
	stored, err := i.otps.Store(ctx, user.ID, code, expiresAt)
	if err != nil {
		i.metrics.OTPIssued.WithLabelValues(metrics.OutcomeStorage).Inc()
		return Issuance{}, &StorageError{Op: "store otp", Err: err}
	}

	iss := Issuance{Code: stored}

	start := time.Now()
	err = i.sender.Send(ctx, user.PhoneNumber, otpMessage(code))
	i.metrics.DeliverySecs.Observe(time.Since(start).Seconds())
	if err != nil {
		i.metrics.OTPIssued.WithLabelValues(metrics.OutcomeDelivery).Inc()
		i.log.Error("otp delivery failed; code remains valid",
			logger.Phone(user.PhoneNumber),
			zap.Int64("user_id", user.ID),
			zap.Int64("otp_id", stored.ID),
			zap.Error(err),
		)
		iss.DeliveryErr = err
		return iss, &DeliveryError{Err: err}
	}

	i.metrics.OTPIssued.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return iss, nil
}

func otpMessage(code string) string {
	return "Your OTP code is: " + code
}

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, otpSpanBig)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()+otpMin), nil
}
