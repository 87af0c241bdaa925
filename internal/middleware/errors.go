package middleware

// Common error codes used by middleware
const (
	ErrorCodeInternal          = "INTERNAL_ERROR"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeRequestTimeout    = "REQUEST_TIMEOUT"
	ErrorCodeUnauthorized      = "UNAUTHORIZED"
	ErrorCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"
)

// Common error messages used by middleware
const (
	ErrorMessageInternal          = "An internal error occurred"
	ErrorMessageRateLimitExceeded = "Too many requests"
	ErrorMessageRequestTimeout    = "Request timeout"
	ErrorMessageUnauthorized      = "Missing or invalid bearer token"
	ErrorMessageMethodNotAllowed  = "Method not allowed"
)

// errorBody is the JSON shape shared by middleware rejections.
func errorBody(code, message, requestID string) map[string]interface{} {
	body := map[string]interface{}{
		"error":   code,
		"message": message,
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	return body
}
