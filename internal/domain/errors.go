package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidMarket     = errors.New("invalid market")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrSessionNotFound   = errors.New("session not found")
	ErrRecordNotFound    = errors.New("order record not found")
	ErrRecordFinal       = errors.New("order record is final")
	ErrUnsupportedMarket = errors.New("unsupported market family")
)
