package domain

import "errors"

var (
	ErrPoolNotFound   = errors.New("pool not found")
	ErrInvalidRequest = errors.New("invalid ride request")
)

// Candidate rejections. The matching engine treats these as "try the next pool".
var (
	ErrInsufficientCapacity = errors.New("insufficient seats or luggage capacity")
	ErrDetourExceeded       = errors.New("pickup exceeds maximum detour")
	ErrStaleState           = errors.New("pool changed since it was read")
	ErrLockContention       = errors.New("pool is locked by another operation")
	ErrAlreadyMember        = errors.New("passenger is already a member of the pool")
)

// Declined state-machine operations. No state is mutated.
var (
	ErrInvalidTransition = errors.New("invalid pool status transition")
	ErrNotMember         = errors.New("passenger is not a member of the pool")
	ErrNotAssignedDriver = errors.New("driver is not assigned to the pool")
)
