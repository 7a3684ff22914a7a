package model

import "errors"

var (
	// ErrAuthentication means the upstream platform rejected the credentials.
	ErrAuthentication = errors.New("authentication with Garmin Connect failed")

	// ErrNotAuthenticated means a client was used before Authenticate succeeded.
	ErrNotAuthenticated = errors.New("not authenticated with Garmin Connect")

	// ErrRateLimitExceeded means the shared per-user request budget is spent.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrDecryption means a stored secret could not be decrypted with the
	// configured master secret and its salt.
	ErrDecryption = errors.New("credential decryption failed")

	// ErrNormalization means an upstream payload was not a JSON object.
	ErrNormalization = errors.New("payload normalization failed")

	// ErrNoCredentials means no active credentials are stored for the user.
	ErrNoCredentials = errors.New("no Garmin credentials found")
)
