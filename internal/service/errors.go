package service

import "errors"

var (
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrMissingField       = errors.New("missing required field")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrMediaNotRetryable  = errors.New("message media is not retryable")
)
