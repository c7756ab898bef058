package enums

import "fmt"

// GenerationStatus tracks a billed unit of work.
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

var validGenerationStatuses = []GenerationStatus{
	GenerationStatusQueued,
	GenerationStatusProcessing,
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

// TerminalGenerationStatuses lists states a record never leaves.
var TerminalGenerationStatuses = []GenerationStatus{
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

func (s GenerationStatus) String() string {
	return string(s)
}

func (s GenerationStatus) IsValid() bool {
	for _, candidate := range validGenerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s GenerationStatus) IsTerminal() bool {
	for _, candidate := range TerminalGenerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s GenerationStatus) rank() int {
	switch s {
	case GenerationStatusQueued:
		return 0
	case GenerationStatusProcessing:
		return 1
	case GenerationStatusCompleted, GenerationStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next keeps the status monotonic.
func (s GenerationStatus) CanTransition(next GenerationStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

func ParseGenerationStatus(value string) (GenerationStatus, error) {
	for _, candidate := range validGenerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation status %q", value)
}
