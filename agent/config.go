package agent

import (
	"image"
	"time"
)

// Config holds the run policy.
type Config struct {
	// MaxIterations caps the number of turns. Zero means no cap.
	MaxIterations int
	// TimeLimit caps wall-clock run time, checked between turns. Zero means none.
	TimeLimit time.Duration
	// TurnDelay is the pause between two turns.
	TurnDelay time.Duration
	// Region is the capture area; the zero rectangle means the primary display.
	Region   image.Rectangle
	Sampling Sampling
}

// DefaultTurnDelay is the pause used when none is configured.
const DefaultTurnDelay = 300 * time.Millisecond
