package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, clients and trackers return
// these (optionally wrapped) so services can translate them into domain outcomes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: session, record or delivery does not exist
// - ErrExpired: verification session aged out at the provider
// - ErrAlreadyUsed: webhook delivery already processed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: upstream or pooled resource temporarily unavailable
//
// Document syntax problems are never errors; they are reported in results.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
