package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phoneotp/server/internal/model"
)

// OtpRepo defines the interface for OTP ledger operations
type OtpRepo interface {
	Store(ctx context.Context, userID int64, code string, expiresAt time.Time) (model.OtpCode, error)
	FindValid(ctx context.Context, userID int64, code string, now time.Time) (model.OtpCode, error)
	Consume(ctx context.Context, userID int64, code string, now time.Time) (model.OtpCode, error)
	CountWithin(ctx context.Context, userID int64, window time.Duration) (int, error)
}

type otpRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewOtpRepo creates a new OtpRepo instance. Each call is bounded by timeout.
func NewOtpRepo(db *sql.DB, timeout time.Duration) OtpRepo {
	return &otpRepo{db: db, timeout: timeout}
}

const otpColumns = `id, user_id, otp_code, expires_at, consumed_at, created_at`

// Store inserts a code unconditionally; earlier codes for the user stay valid.
func (r *otpRepo) Store(ctx context.Context, userID int64, code string, expiresAt time.Time) (model.OtpCode, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	otp := model.OtpCode{UserID: userID, Code: code, ExpiresAt: expiresAt}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO otps (user_id, otp_code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, userID, code, expiresAt).Scan(&otp.ID, &otp.CreatedAt)
	if err != nil {
		return model.OtpCode{}, fmt.Errorf("insert otp: %w", classify(err))
	}
	return otp, nil
}

// FindValid returns the most recent unconsumed code matching userID and code
// exactly whose expiry is after now.
func (r *otpRepo) FindValid(ctx context.Context, userID int64, code string, now time.Time) (model.OtpCode, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+otpColumns+`
		FROM otps
		WHERE user_id = $1
		  AND otp_code = $2
		  AND expires_at > $3
		  AND consumed_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID, code, now)
	otp, err := scanOtp(row)
	if err != nil {
		return model.OtpCode{}, fmt.Errorf("find valid otp: %w", classify(err))
	}
	return otp, nil
}

// Consume atomically marks the most recent matching valid code as used.
// Concurrent callers racing on one code see at most one success.
func (r *otpRepo) Consume(ctx context.Context, userID int64, code string, now time.Time) (model.OtpCode, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE otps
		SET consumed_at = $3
		WHERE consumed_at IS NULL
		  AND id = (
			SELECT id FROM otps
			WHERE user_id = $1
			  AND otp_code = $2
			  AND expires_at > $3
			  AND consumed_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		  )
		RETURNING `+otpColumns, userID, code, now)
	otp, err := scanOtp(row)
	if err != nil {
		return model.OtpCode{}, fmt.Errorf("consume otp: %w", classify(err))
	}
	return otp, nil
}

// CountWithin returns the number of codes issued to the user in the last
// window, measured against the database clock that stamps created_at.
func (r *otpRepo) CountWithin(ctx context.Context, userID int64, window time.Duration) (int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otps
		WHERE user_id = $1 AND created_at >= now() - make_interval(secs => $2)
	`, userID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent otps: %w", classify(err))
	}
	return count, nil
}

func scanOtp(row *sql.Row) (model.OtpCode, error) {
	var (
		otp      model.OtpCode
		consumed sql.NullTime
	)
	err := row.Scan(&otp.ID, &otp.UserID, &otp.Code, &otp.ExpiresAt, &consumed, &otp.CreatedAt)
	if err != nil {
		return model.OtpCode{}, err
	}
	otp.ConsumedAt = timePtr(consumed)
	return otp, nil
}
