package core

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID generates a unique identifier for sessions and messages.
func NewID() string { return uuid.NewString() }

// NewTurnID generates a short collision-resistant identifier correlating the
// log lines and events of a single respond turn.
func NewTurnID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return NewID()
	}
	return id
}

// StepID derives a deterministic step identifier from its route, description
// and position in the chain. Content-addressed ids keep step identity stable
// across process restarts.
func StepID(routeID, description string, sequence int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", routeID, description, sequence)
	return fmt.Sprintf("step_%016x", h.Sum64())
}
