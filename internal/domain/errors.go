package domain

import "errors"

var (
	ErrEmptyPrompt        = errors.New("empty prompt")
	ErrRequestInFlight    = errors.New("request already in flight")
	ErrGenerationTimeout  = errors.New("generation timed out")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrExchangeInProgress = errors.New("code exchange already in progress")
	ErrMissingCode        = errors.New("authentication code missing")
	ErrInvalidState       = errors.New("invalid or expired state")
	ErrProjectNotFound    = errors.New("project not found")
	ErrKeyNotFound        = errors.New("key not found")
)
