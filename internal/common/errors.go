// Package common defines shared constants and sentinel errors used across
// the Hoot server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized = errors.New("unauthorized")

	// Request validation errors.
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNoFileProvided    = errors.New("no file provided")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidPassword   = errors.New("password must be between 8 and 64 characters")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrEmailTaken        = errors.New("a user already exists with that email")
	ErrInvalidCode       = errors.New("invalid code")
	ErrLoginFailed       = errors.New("login failed")
	ErrLoggedOut         = errors.New("logged out")
	ErrLoginRequired     = errors.New("login required")

	// Track content errors. These are caused by client input and are
	// reported verbatim.
	ErrFilenameRequired = errors.New("filename not specified")
	ErrInvalidFileType  = errors.New("invalid file type (only audio allowed)")
	ErrFileTooLarge     = errors.New("file too large")
	ErrQuotaExceeded    = errors.New("file size exceeds your quota")

	// Track storage errors.
	ErrUploadFailed   = errors.New("upload failed")
	ErrPersistFailed  = errors.New("track creation failed")
	ErrDeleteFailed   = errors.New("couldn't delete track")
	ErrDownloadFailed = errors.New("error downloading file")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Webhook errors.
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPatron    = errors.New("invalid patron")
	ErrLinkFailed       = errors.New("couldn't link patreon account")
)
