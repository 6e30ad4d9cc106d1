package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, classify(fmt.Errorf("scan: %w", sql.ErrNoRows)), ErrNotFound)

	dup := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := classify(dup)
	assert.ErrorIs(t, err, ErrConflict)
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr), "cause must be preserved")

	other := errors.New("connection refused")
	assert.Equal(t, other, classify(other))
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "Asha", Valid: true}, nullString("Asha"))

	assert.Nil(t, stringPtr(sql.NullString{}))
	if p := stringPtr(sql.NullString{String: "x", Valid: true}); assert.NotNil(t, p) {
		assert.Equal(t, "x", *p)
	}

	assert.Nil(t, timePtr(sql.NullTime{}))
	now := time.Now()
	if p := timePtr(sql.NullTime{Time: now, Valid: true}); assert.NotNil(t, p) {
		assert.True(t, now.Equal(*p))
	}
}
