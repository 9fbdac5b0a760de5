package cookie

import "errors"

var (
	// ErrNoSecret indicates no signing secret was provided.
	ErrNoSecret = errors.New("no secret provided for cookie manager")

	// ErrSecretTooShort indicates a secret below the minimum length.
	ErrSecretTooShort = errors.New("secret must be at least 32 characters long")

	// ErrInvalidSignature indicates signature verification failed, suggesting
	// tampering or a fully rotated-out key.
	ErrInvalidSignature = errors.New("cookie signature verification failed")

	// ErrInvalidFormat indicates an unparsable signed value.
	ErrInvalidFormat = errors.New("invalid cookie format")

	// ErrCookieNotFound indicates the cookie is absent from the request.
	ErrCookieNotFound = errors.New("cookie not found in request")

	// ErrCookieTooLarge indicates the serialized cookie exceeds 4KB.
	ErrCookieTooLarge = errors.New("cookie exceeds maximum size")
)
