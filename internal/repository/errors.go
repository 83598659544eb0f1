package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyTerminal is returned when a callback targets an attempt that
	// already reached a terminal status.
	ErrAlreadyTerminal = errors.New("payment attempt already terminal")

	// ErrDuplicateCorrelationID is returned when a provider identifier is
	// already recorded on another attempt.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")
)
