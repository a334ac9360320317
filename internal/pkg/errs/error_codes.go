/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 3xxx: Authentication and Session Errors
const (
	// ErrMissingToken indicates that the connection request carried no bearer token.
	ErrMissingToken = 3001

	// ErrTokenInvalid indicates that token verification failed (bad signature,
	// untrusted issuer, or expired/not-yet-valid lifetime).
	ErrTokenInvalid = 3002

	// ErrEmailNotVerified indicates that the verified identity has an unconfirmed email address.
	ErrEmailNotVerified = 3003

	// ErrNotAuthorized indicates that the authorization policy rejected the verified identity.
	ErrNotAuthorized = 3004

	// ErrSessionReplaced indicates that the connection was superseded by a newer
	// connection authenticated as the same identity.
	ErrSessionReplaced = 3005
)

// 4xxx: Signaling and Relay Errors
const (
	// ErrInvalidPath indicates that a WebSocket client dialed a path that does not
	// encode a room identifier.
	ErrInvalidPath = 4001

	// ErrMalformedMessage indicates that a relay payload could not be parsed.
	ErrMalformedMessage = 4002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
