package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phoneotp/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	FindOrCreate(ctx context.Context, phone string, profile model.Profile) (user model.User, created bool, err error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetByID(ctx context.Context, id int64) (model.User, error)
}

type userRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewUserRepo creates a new UserRepo instance. Each call is bounded by timeout.
func NewUserRepo(db *sql.DB, timeout time.Duration) UserRepo {
	return &userRepo{db: db, timeout: timeout}
}

const userColumns = `id, phone_number, first_name, last_name, created_at`

// FindOrCreate inserts the user or returns the existing row in one statement.
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict;
// xmax = 0 only for a freshly inserted tuple.
func (r *userRepo) FindOrCreate(ctx context.Context, phone string, profile model.Profile) (model.User, bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO users (phone_number, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted
	`
	var (
		user        model.User
		first, last sql.NullString
		inserted    bool
	)
	err := r.db.QueryRowContext(ctx, query, phone, nullString(profile.FirstName), nullString(profile.LastName)).Scan(
		&user.ID,
		&user.PhoneNumber,
		&first,
		&last,
		&user.CreatedAt,
		&inserted,
	)
	if err != nil {
		return model.User{}, false, fmt.Errorf("find or create user: %w", classify(err))
	}
	user.FirstName = stringPtr(first)
	user.LastName = stringPtr(last)
	return user, inserted, nil
}

// GetByPhone retrieves a user by normalized phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var (
		user        model.User
		first, last sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.PhoneNumber,
		&first,
		&last,
		&user.CreatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", classify(err))
	}
	user.FirstName = stringPtr(first)
	user.LastName = stringPtr(last)
	return user, nil
}
