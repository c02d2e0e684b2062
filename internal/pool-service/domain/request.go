package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the authenticated actor, normalized once at the system
// boundary and passed by value from there on.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// RideRequest is the validated command a passenger submits to be pooled.
type RideRequest struct {
	Pickup       Coordinate
	TerminalCode string
	SeatsNeeded  int
	LuggageCount int
	// ClientRequestID distinguishes two deliberate, otherwise identical
	// requests from the same passenger. Optional.
	ClientRequestID string
}

// Validate checks the shape of the request. It never touches pool state.
func (r RideRequest) Validate() error {
	if err := r.Pickup.Validate(); err != nil {
		return fmt.Errorf("%w: pickup: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(r.TerminalCode) == "" {
		return fmt.Errorf("%w: terminal is required", ErrInvalidRequest)
	}
	if r.SeatsNeeded < 1 {
		return fmt.Errorf("%w: seats needed must be at least 1", ErrInvalidRequest)
	}
	if r.LuggageCount < 0 {
		return fmt.Errorf("%w: luggage count cannot be negative", ErrInvalidRequest)
	}
	return nil
}

// Capacity is the seat and luggage allowance of a single pool.
type Capacity struct {
	Seats   int
	Luggage int
}

// FitsCapacity rejects a request that no empty pool could ever hold.
func (r RideRequest) FitsCapacity(c Capacity) error {
	if r.SeatsNeeded > c.Seats {
		return fmt.Errorf("%w: at most %d seats per request", ErrInvalidRequest, c.Seats)
	}
	if r.LuggageCount > c.Luggage {
		return fmt.Errorf("%w: at most %d luggage per request", ErrInvalidRequest, c.Luggage)
	}
	return nil
}

// IdempotencyKey is deterministic over the job, the passenger and the
// request. Every redelivery of a job maps to the same key; a new job from the
// same passenger never does.
func (r RideRequest) IdempotencyKey(identity Identity, jobID string) string {
	h := sha256.New()
	for _, part := range []string{
		jobID,
		identity.ID,
		strconv.FormatFloat(r.Pickup.Latitude(), 'f', -1, 64),
		strconv.FormatFloat(r.Pickup.Longitude(), 'f', -1, 64),
		r.TerminalCode,
		strconv.Itoa(r.SeatsNeeded),
		strconv.Itoa(r.LuggageCount),
		r.ClientRequestID,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
