package tokens

import "errors"

var (
	// ErrInsufficientTokens means the account is missing or cannot cover the charge.
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrAccountNotFound    = errors.New("token account not found")
	ErrInvalidAmount      = errors.New("token amount must be positive")
)
