/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
//
// The 3xxx and 4xxx messages double as WebSocket policy close reasons, so their
// wording is part of the wire contract with clients.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 3xxx: Authentication and Session Errors
	ErrMissingToken:     {Code: ErrMissingToken, Message: "Missing token parameter", Status: http.StatusUnauthorized},
	ErrTokenInvalid:     {Code: ErrTokenInvalid, Message: "Invalid or expired token", Status: http.StatusUnauthorized},
	ErrEmailNotVerified: {Code: ErrEmailNotVerified, Message: "Email not verified", Status: http.StatusForbidden},
	ErrNotAuthorized:    {Code: ErrNotAuthorized, Message: "User not authorized for this room", Status: http.StatusForbidden},
	ErrSessionReplaced:  {Code: ErrSessionReplaced, Message: "Session replaced by a newer connection", Status: http.StatusConflict},

	// 4xxx: Signaling and Relay Errors
	ErrInvalidPath:      {Code: ErrInvalidPath, Message: "Invalid path. Expected: /room/{roomId}", Status: http.StatusNotFound},
	ErrMalformedMessage: {Code: ErrMalformedMessage, Message: "Malformed signaling message.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
