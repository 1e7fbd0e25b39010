package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Scheduler errors
var (
	ErrTickInProgress = errors.New("tick already in progress")
	ErrUnknownRegion  = errors.New("unknown region")
	ErrAlreadyRunning = errors.New("scheduler already running")
)

// Match / confirmation errors
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrNotInMatch    = errors.New("player is not part of this match")
	ErrPairRejected  = errors.New("pairing rejected")
)
