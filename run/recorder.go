package run

import (
	"context"

	"github.com/google/uuid"
	"github.com/hairizuan-noorazman/desktop-agent/execlog"
)

// Recorder copies execution log entries of a single run into a TurnStore.
type Recorder struct {
	turns TurnStore
	runID uuid.UUID
}

func NewRecorder(turns TurnStore, runID uuid.UUID) *Recorder {
	return &Recorder{turns: turns, runID: runID}
}

// RecordTurn stores entry as a Turn of the recorder's run.
func (r *Recorder) RecordTurn(ctx context.Context, entry execlog.Entry) error {
	return r.turns.Record(ctx, TurnFromEntry(r.runID, entry))
}

// TurnFromEntry converts a log entry. The window dump is not kept; only its
// size is.
func TurnFromEntry(runID uuid.UUID, entry execlog.Entry) *Turn {
	return &Turn{
		RunID:          runID,
		TurnIndex:      entry.TurnIndex,
		ScreenshotName: entry.ScreenshotName,
		Action:         entry.Action,
		Outcome:        string(entry.Outcome),
		Story:          entry.Story,
		Failure:        entry.Failure,
		WindowCount:    len(entry.Windows),
		LoggedAt:       entry.Timestamp,
	}
}
