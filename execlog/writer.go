package execlog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hairizuan-noorazman/desktop-agent/window"
)

// Writer appends entries to a single log file. It is the only writer of that
// file for the lifetime of a run.
type Writer struct {
	path string

	mu       sync.Mutex
	lastTurn int
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string {
	return w.path
}

// AppendEntry writes one block. The file is opened, synced and closed on
// every call, so a crash between turns leaves earlier blocks intact.
func (w *Writer) AppendEntry(entry Entry) (err error) {
	if entry.ScreenshotName == "" {
		return ErrMissingImage
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.TurnIndex <= w.lastTurn {
		return fmt.Errorf("%w: got %d after %d", ErrTurnOutOfOrder, entry.TurnIndex, w.lastTurn)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close execution log: %w", cerr)
		}
	}()

	if _, err = f.WriteString(FormatEntry(entry)); err != nil {
		return fmt.Errorf("write execution log: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync execution log: %w", err)
	}

	w.lastTurn = entry.TurnIndex
	return nil
}

// FormatEntry renders the block for entry, including its trailing blank line.
func FormatEntry(entry Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s | pid=%d | image=%s | turn=%d ===\n",
		entry.Timestamp.Format(TimestampLayout), entry.ProcessID, entry.ScreenshotName, entry.TurnIndex)

	b.WriteString("outcome=" + string(entry.Outcome))
	if entry.Action != "" {
		b.WriteString(" action=" + entry.Action)
	}
	b.WriteString("\n")

	section(&b, "story", entry.Story)
	section(&b, "failure", entry.Failure)
	section(&b, "raw", entry.Raw)

	b.WriteString(window.Format(entry.Windows))
	b.WriteString("\n")
	return b.String()
}

// section writes a labelled block of text indented so that it can never
// produce an empty line inside a block.
func section(b *strings.Builder, label, text string) {
	text = strings.ReplaceAll(text, "\r", "")
	if text == "" {
		return
	}
	b.WriteString(label + ":\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(bodyIndent + line + "\n")
	}
}

const bodyIndent = "    "
