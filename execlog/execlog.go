// Package execlog writes the per-run execution log: one plain-text block per
// turn, keyed by the screenshot taken during that turn.
package execlog

import (
	"errors"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/window"
)

var (
	ErrTurnOutOfOrder = errors.New("turn index must increase")
	ErrMissingImage   = errors.New("screenshot name is required")
	ErrMalformedLog   = errors.New("malformed execution log")
)

// TimestampLayout is the millisecond layout used in block headers.
const TimestampLayout = "2006-01-02 15:04:05.000"

type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeInvalidToolCall  Outcome = "invalid_tool_call"
	OutcomeEndpointFailure  Outcome = "endpoint_failure"
	OutcomeExecutionFailure Outcome = "execution_failure"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeOK, OutcomeInvalidToolCall, OutcomeEndpointFailure, OutcomeExecutionFailure:
		return true
	}
	return false
}

// Entry is one turn as recorded in the log. Entries are never edited once
// appended.
type Entry struct {
	TurnIndex      int
	Timestamp      time.Time
	ProcessID      uint32
	ScreenshotName string
	Windows        []window.Snapshot
	Outcome        Outcome
	Action         string
	Story          string
	// Failure is the reason a turn did not complete. Raw holds the model
	// response that caused it, when there was one.
	Failure string
	Raw     string
}

// ParsedEntry is a block read back from a log file.
type ParsedEntry struct {
	TurnIndex      int       `json:"turn"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessID      uint32    `json:"pid"`
	ScreenshotName string    `json:"image"`
	Outcome        Outcome   `json:"outcome"`
	Action         string    `json:"action,omitempty"`
	Story          string    `json:"story,omitempty"`
	Failure        string    `json:"failure,omitempty"`
	Raw            string    `json:"raw,omitempty"`
	Windows        []string  `json:"windows,omitempty"`
}
