package session

import (
	"time"

	"photostudio/internal/domain"
)

// Status is the lifecycle position of a session's edit request.
type Status int

const (
	Idle Status = iota
	Validating
	InFlight
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a request is being prepared or awaited.
func (s Status) Busy() bool {
	return s == Validating || s == InFlight
}

// State is an immutable snapshot of a session. Result is set only when
// Status is Succeeded and Error only when Status is Failed.
type State struct {
	ID          string
	Status      Status
	Original    *domain.Image
	Instruction string
	Result      *domain.EditResult
	Error       string
	Notice      string
	Generation  uint64
	UpdatedAt   time.Time
}

// CanGenerate mirrors the precondition Start enforces so presentation can
// enable or disable its generate control.
func (s State) CanGenerate() bool {
	return s.Original != nil && !s.Status.Busy() && hasText(s.Instruction)
}
