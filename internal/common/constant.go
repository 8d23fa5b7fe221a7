package common

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

// Storage limits, in bytes.
const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB

	// MaxTrackSize is the hard ceiling for a single uploaded or fetched track.
	MaxTrackSize = 1 * GiB
)

// Environments recognised by the server. Anything other than EnvProduction
// exposes diagnostic error details to clients.
const (
	EnvProduction  = "prod"
	EnvDevelopment = "dev"
)
