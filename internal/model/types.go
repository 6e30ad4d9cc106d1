package model

import "time"

// User represents a user identified by a normalized phone number
type User struct {
	ID          int64
	PhoneNumber string
	FirstName   *string
	LastName    *string
	CreatedAt   time.Time
}

// Profile holds optional attributes written only when a user is first created
type Profile struct {
	FirstName string
	LastName  string
}

// OtpCode represents an issued one-time code
type OtpCode struct {
	ID         int64
	UserID     int64
	Code       string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Credential is a signed token bound to a user
type Credential struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}
