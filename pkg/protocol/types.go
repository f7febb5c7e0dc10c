package protocol

import (
	"fmt"
	"strings"
)

// Reserved message types.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeBatch = "batch"
	TypeAck   = "ack"
)

// Priority orders lanes in the outgoing queue. Lower value drains first.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	NumPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Valid reports whether p names one of the four lanes.
func (p Priority) Valid() bool { return p < NumPriorities }

// ParsePriority accepts the lane names used in config and on the CLI.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "", "medium", "normal":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority: %q", s)
	}
}

// IsControl reports whether t is handled by the engine itself.
func IsControl(t string) bool {
	switch t {
	case TypePing, TypePong, TypeBatch:
		return true
	}
	return false
}
