package execlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleEntry(turn int) Entry {
	return Entry{
		TurnIndex:      turn,
		Timestamp:      time.Date(2026, 10, 17, 10, 11, 12, 345_000_000, time.Local),
		ProcessID:      1234,
		ScreenshotName: "step007.png",
		Outcome:        OutcomeOK,
		Action:         "type_text",
		Story:          "typing greeting\n\nsecond paragraph",
		Windows: []window.Snapshot{{
			Handle:       0x10,
			ClassName:    "FRANZHUD",
			Rect:         window.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100},
			Title:        "FRANZ",
			TopLevelText: strPtr("hud body"),
		}},
	}
}

func TestFormatEntry(t *testing.T) {
	got := FormatEntry(sampleEntry(7))

	want := "" +
		"=== 2026-10-17 10:11:12.345 | pid=1234 | image=step007.png | turn=7 ===\n" +
		"outcome=ok action=type_text\n" +
		"story:\n" +
		"    typing greeting\n" +
		"    \n" +
		"    second paragraph\n" +
		"[001] hwnd=0x0000000000000010 class=FRANZHUD rect=(0,0,100,100) title=\"FRANZ\"\n" +
		"    wm_gettext:\n" +
		"    hud body\n" +
		"\n"
	assert.Equal(t, want, got)
}

func TestWriter_AppendAndParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution.log")
	w := NewWriter(path)

	first := sampleEntry(1)
	first.ScreenshotName = "step001.png"

	second := sampleEntry(2)
	second.ScreenshotName = "step002.png"
	second.Outcome = OutcomeInvalidToolCall
	second.Action = ""
	second.Story = ""
	second.Failure = "expected exactly one tool call, got 2"
	second.Raw = `{"tool_calls":[{},{}]}`
	second.Windows = nil

	require.NoError(t, w.AppendEntry(first))
	require.NoError(t, w.AppendEntry(second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := Parse(f)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].TurnIndex)
	assert.Equal(t, "step001.png", entries[0].ScreenshotName)
	assert.Equal(t, uint32(1234), entries[0].ProcessID)
	assert.True(t, first.Timestamp.Equal(entries[0].Timestamp))
	assert.Equal(t, OutcomeOK, entries[0].Outcome)
	assert.Equal(t, "type_text", entries[0].Action)
	assert.Equal(t, "typing greeting\n\nsecond paragraph", entries[0].Story)
	assert.Equal(t, []string{
		`[001] hwnd=0x0000000000000010 class=FRANZHUD rect=(0,0,100,100) title="FRANZ"`,
		"    wm_gettext:",
		"    hud body",
	}, entries[0].Windows)

	assert.Equal(t, 2, entries[1].TurnIndex)
	assert.Equal(t, OutcomeInvalidToolCall, entries[1].Outcome)
	assert.Empty(t, entries[1].Action)
	assert.Equal(t, "expected exactly one tool call, got 2", entries[1].Failure)
	assert.Equal(t, `{"tool_calls":[{},{}]}`, entries[1].Raw)
	assert.Empty(t, entries[1].Windows)
}

func TestWriter_RejectsOutOfOrderTurns(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "execution.log"))

	require.NoError(t, w.AppendEntry(sampleEntry(3)))
	assert.ErrorIs(t, w.AppendEntry(sampleEntry(3)), ErrTurnOutOfOrder)
	assert.ErrorIs(t, w.AppendEntry(sampleEntry(2)), ErrTurnOutOfOrder)
	assert.NoError(t, w.AppendEntry(sampleEntry(4)))
}

func TestWriter_RequiresScreenshotName(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "execution.log"))

	e := sampleEntry(1)
	e.ScreenshotName = ""
	assert.ErrorIs(t, w.AppendEntry(e), ErrMissingImage)
}

func TestWriter_OpenFailure(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing", "execution.log"))

	err := w.AppendEntry(sampleEntry(1))
	require.Error(t, err)

	// the failed turn does not advance the sequence
	require.NoError(t, os.MkdirAll(filepath.Dir(w.Path()), 0o755))
	assert.NoError(t, w.AppendEntry(sampleEntry(1)))
}

func TestWriter_PriorEntriesSurviveLaterFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "execution.log")
	w := NewWriter(path)

	for turn := 1; turn <= 4; turn++ {
		require.NoError(t, w.AppendEntry(sampleEntry(turn)))
	}
	assert.Error(t, w.AppendEntry(sampleEntry(4)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	entries, err := Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, i+1, e.TurnIndex)
	}
}

func TestWriter_ConcurrentAppendsStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution.log")
	w := NewWriter(path)

	var wg sync.WaitGroup
	for turn := 1; turn <= 20; turn++ {
		wg.Add(1)
		go func(turn int) {
			defer wg.Done()
			_ = w.AppendEntry(sampleEntry(turn))
		}(turn)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := Parse(f)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].TurnIndex, entries[i-1].TurnIndex)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "leading blank lines", input: "\n\n=== 2026-10-17 10:11:12.345 | pid=1 | image=step001.png | turn=1 ===\noutcome=ok\n\n", want: 1},
		{name: "garbage", input: "hello\n", wantErr: true},
		{name: "unterminated block", input: "=== 2026-10-17 10:11:12.345 | pid=1 | image=step001.png | turn=1 ===\noutcome=ok\n", wantErr: true},
		{name: "bad timestamp", input: "=== yesterday | pid=1 | image=step001.png | turn=1 ===\n\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedLog)
				return
			}
			require.NoError(t, err)
			assert.Len(t, entries, tt.want)
		})
	}
}
