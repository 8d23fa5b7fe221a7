// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. Nullable columns are pointers.
type User struct {
	ID           int64
	UserName     string
	Email        string
	PasswordHash string

	Verified                   bool
	VerificationCode           *string
	VerificationCodeExpiration *time.Time

	// PatreonMember selects the elevated storage quota.
	PatreonMember            bool
	PatreonID                *string
	PatreonLastChecked       *time.Time
	PatreonLastPayment       *time.Time
	PatreonAccessToken       *string
	PatreonRefreshToken      *string
	PatreonAccessTokenExpiry *time.Time
}
