package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/execlog"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/storage"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/hairizuan-noorazman/desktop-agent/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	store      storage.BlobStorage
	failOn     int
	skipUpload bool

	mu    sync.Mutex
	count int
}

func (c *fakeCapturer) Capture(ctx context.Context, region image.Rectangle) (string, error) {
	c.mu.Lock()
	c.count++
	n := c.count
	c.mu.Unlock()

	if n == c.failOn {
		return "", errors.New("display lost")
	}
	name := fmt.Sprintf("step%03d.png", n)
	if !c.skipUpload {
		if err := c.store.Upload(ctx, name, strings.NewReader("png")); err != nil {
			return "", err
		}
	}
	return name, nil
}

func (c *fakeCapturer) LastImage() []byte { return []byte("png") }

func (c *fakeCapturer) captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type fakeInspector struct{}

func (fakeInspector) CaptureProcessWindows(ctx context.Context) []window.Snapshot {
	return []window.Snapshot{{Handle: 1, ClassName: "FRANZHUD", Title: "FRANZ", Rect: window.Rect{Right: 10, Bottom: 10}}}
}

type fakeEndpoint struct {
	respond func(turn int) (*toolcall.Response, error)

	mu           sync.Mutex
	observations []Observation
}

func (e *fakeEndpoint) Submit(ctx context.Context, obs Observation, spec toolcall.Spec, sampling Sampling) (*toolcall.Response, error) {
	e.mu.Lock()
	e.observations = append(e.observations, obs)
	e.mu.Unlock()
	return e.respond(obs.TurnIndex)
}

type fakeActuator struct {
	err     error
	actions []toolcall.Action
}

func (a *fakeActuator) Execute(ctx context.Context, action toolcall.Action) error {
	a.actions = append(a.actions, action)
	return a.err
}

type fakeRecorder struct {
	turns []int
}

func (r *fakeRecorder) RecordTurn(ctx context.Context, entry execlog.Entry) error {
	r.turns = append(r.turns, entry.TurnIndex)
	return nil
}

// orderingLog fails the test when an entry is appended before its screenshot
// exists or after the next capture has started.
type orderingLog struct {
	t        *testing.T
	inner    *execlog.Writer
	store    storage.BlobStorage
	capturer *fakeCapturer
}

func (l *orderingLog) AppendEntry(entry execlog.Entry) error {
	exists, err := l.store.Exists(context.Background(), entry.ScreenshotName)
	require.NoError(l.t, err)
	assert.True(l.t, exists, "screenshot %s missing at append", entry.ScreenshotName)
	assert.Equal(l.t, entry.TurnIndex, l.capturer.captures())
	return l.inner.AppendEntry(entry)
}

func call(name, args string) *toolcall.Response {
	return &toolcall.Response{
		ToolCalls: []toolcall.RawCall{{Name: name, Arguments: json.RawMessage(args)}},
		Raw:       fmt.Sprintf(`{"name":%q,"arguments":%s}`, name, args),
	}
}

func clickEveryTurn(turn int) (*toolcall.Response, error) {
	return call("click", fmt.Sprintf(`{"x":%d,"y":500,"story":"turn %d"}`, turn, turn)), nil
}

type harness struct {
	orch     *Orchestrator
	logPath  string
	store    *storage.LocalStorage
	capturer *fakeCapturer
	endpoint *fakeEndpoint
	actuator *fakeActuator
	logger   *logger.TestLogger
}

func newHarness(t *testing.T, cfg Config, respond func(int) (*toolcall.Response, error), mutate func(*Deps)) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "run"))
	require.NoError(t, err)

	h := &harness{
		logPath:  filepath.Join(dir, "run", "execution.log"),
		store:    store,
		capturer: &fakeCapturer{store: store},
		endpoint: &fakeEndpoint{respond: respond},
		actuator: &fakeActuator{},
		logger:   logger.NewTestLogger(),
	}
	deps := Deps{
		Capturer:    h.capturer,
		Inspector:   fakeInspector{},
		Endpoint:    h.endpoint,
		Actuator:    h.actuator,
		Screenshots: store,
		Spec:        toolcall.DefaultSpec(),
		Identity:    window.Identity{PID: 1234, ProcessName: "franz"},
	}
	deps.Log = &orderingLog{t: t, inner: execlog.NewWriter(h.logPath), store: store, capturer: h.capturer}
	if mutate != nil {
		mutate(&deps)
	}

	h.orch, err = NewOrchestrator(cfg, deps, h.logger)
	require.NoError(t, err)
	return h
}

func (h *harness) entries(t *testing.T) []execlog.ParsedEntry {
	t.Helper()
	f, err := os.Open(h.logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()

	entries, err := execlog.Parse(f)
	require.NoError(t, err)
	return entries
}

func TestRun_StopsAtMaxIterations(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 3}, clickEveryTurn, nil)

	require.NoError(t, h.orch.Run(context.Background()))

	assert.Equal(t, StateStopped, h.orch.State())
	entries := h.entries(t)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.TurnIndex)
		assert.Equal(t, fmt.Sprintf("step%03d.png", i+1), e.ScreenshotName)
		assert.Equal(t, execlog.OutcomeOK, e.Outcome)
		assert.Equal(t, "click", e.Action)
		assert.Equal(t, uint32(1234), e.ProcessID)
	}
	require.Len(t, h.actuator.actions, 3)
	assert.Equal(t, toolcall.Click{At: toolcall.Point{X: 1, Y: 500}}, h.actuator.actions[0])
}

func TestRun_CaptureFailureStopsRun(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 10}, clickEveryTurn, nil)
	h.capturer.failOn = 5

	err := h.orch.Run(context.Background())

	require.ErrorIs(t, err, ErrCaptureFailure)
	assert.Equal(t, StateStopped, h.orch.State())

	entries := h.entries(t)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, i+1, e.TurnIndex)
	}
	assert.Len(t, h.endpoint.observations, 4)
}

func TestRun_InvalidToolCallIsLoggedAndRunContinues(t *testing.T) {
	respond := func(turn int) (*toolcall.Response, error) {
		if turn == 2 {
			return &toolcall.Response{
				ToolCalls: []toolcall.RawCall{
					{Name: "click", Arguments: json.RawMessage(`{"x":1,"y":1,"story":"a"}`)},
					{Name: "click", Arguments: json.RawMessage(`{"x":2,"y":2,"story":"b"}`)},
				},
				Raw: "two calls",
			}, nil
		}
		return clickEveryTurn(turn)
	}
	h := newHarness(t, Config{MaxIterations: 3}, respond, nil)

	require.NoError(t, h.orch.Run(context.Background()))

	entries := h.entries(t)
	require.Len(t, entries, 3)
	assert.Equal(t, execlog.OutcomeInvalidToolCall, entries[1].Outcome)
	assert.Contains(t, entries[1].Failure, toolcall.ReasonMultipleToolCalls)
	assert.Equal(t, "two calls", entries[1].Raw)
	assert.Equal(t, execlog.OutcomeOK, entries[2].Outcome)
	assert.Len(t, h.actuator.actions, 2)
}

func TestRun_EmptyResponseIsLoggedAndRunContinues(t *testing.T) {
	respond := func(turn int) (*toolcall.Response, error) {
		if turn == 1 {
			return nil, nil
		}
		return clickEveryTurn(turn)
	}
	h := newHarness(t, Config{MaxIterations: 2}, respond, nil)

	require.NotPanics(t, func() {
		require.NoError(t, h.orch.Run(context.Background()))
	})

	entries := h.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, execlog.OutcomeInvalidToolCall, entries[0].Outcome)
	assert.Contains(t, entries[0].Failure, toolcall.ReasonNoToolCall)
	assert.Empty(t, entries[0].Action)
	assert.Equal(t, execlog.OutcomeOK, entries[1].Outcome)
	assert.Len(t, h.actuator.actions, 1)
}

func TestRun_RedefinedBuiltinWithOtherShapeIsInvalid(t *testing.T) {
	spec := toolcall.Spec{Tools: []toolcall.Tool{{
		Name: "click",
		Params: []toolcall.Param{
			{Name: "selector", Type: toolcall.TypeString, Required: true},
			{Name: "story", Type: toolcall.TypeString, Required: true},
		},
	}}}
	respond := func(turn int) (*toolcall.Response, error) {
		return call("click", `{"selector":"#ok","story":"press ok"}`), nil
	}
	h := newHarness(t, Config{MaxIterations: 1}, respond, func(d *Deps) { d.Spec = spec })

	require.NoError(t, h.orch.Run(context.Background()))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, execlog.OutcomeInvalidToolCall, entries[0].Outcome)
	assert.Contains(t, entries[0].Failure, toolcall.ReasonActionShape)
	assert.Equal(t, "click", entries[0].Action)
	assert.Empty(t, h.actuator.actions)
}

func TestRun_MissingStoryIsInvalid(t *testing.T) {
	respond := func(turn int) (*toolcall.Response, error) {
		return call("click", `{"x":100,"y":200}`), nil
	}
	h := newHarness(t, Config{MaxIterations: 1}, respond, nil)

	require.NoError(t, h.orch.Run(context.Background()))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, execlog.OutcomeInvalidToolCall, entries[0].Outcome)
	assert.Equal(t, "click", entries[0].Action)
	assert.Empty(t, h.actuator.actions)
}

func TestRun_CustomToolReachesActuator(t *testing.T) {
	spec := toolcall.Spec{Tools: []toolcall.Tool{{
		Name: "type",
		Params: []toolcall.Param{
			{Name: "text", Type: toolcall.TypeString, Required: true},
			{Name: "story", Type: toolcall.TypeString, Required: true},
		},
	}}}
	respond := func(turn int) (*toolcall.Response, error) {
		return call("type", `{"text":"hello","story":"typing greeting"}`), nil
	}
	h := newHarness(t, Config{MaxIterations: 7}, respond, func(d *Deps) { d.Spec = spec })

	require.NoError(t, h.orch.Run(context.Background()))

	require.Len(t, h.actuator.actions, 7)
	assert.Equal(t, toolcall.Generic{Name: "type", Arguments: map[string]interface{}{"text": "hello"}}, h.actuator.actions[6])

	entries := h.entries(t)
	require.Len(t, entries, 7)
	last := entries[6]
	assert.Equal(t, 7, last.TurnIndex)
	assert.Equal(t, "step007.png", last.ScreenshotName)
	assert.Equal(t, execlog.OutcomeOK, last.Outcome)
	assert.Equal(t, "type", last.Action)
	assert.Equal(t, "typing greeting", last.Story)
}

func TestRun_EndpointFailureIsLogged(t *testing.T) {
	respond := func(turn int) (*toolcall.Response, error) {
		if turn == 1 {
			return nil, errors.New("connection refused")
		}
		return clickEveryTurn(turn)
	}
	h := newHarness(t, Config{MaxIterations: 2}, respond, nil)

	require.NoError(t, h.orch.Run(context.Background()))

	entries := h.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, execlog.OutcomeEndpointFailure, entries[0].Outcome)
	assert.Equal(t, "connection refused", entries[0].Failure)
	assert.Equal(t, execlog.OutcomeOK, entries[1].Outcome)
}

func TestRun_ExecutionFailureIsLogged(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 2}, clickEveryTurn, nil)
	h.actuator.err = errors.New("input blocked")

	require.NoError(t, h.orch.Run(context.Background()))

	entries := h.entries(t)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, execlog.OutcomeExecutionFailure, e.Outcome)
		assert.Equal(t, "input blocked", e.Failure)
	}
}

func TestRun_MissingScreenshotIsFatal(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 3}, clickEveryTurn, func(d *Deps) {
		d.Log = execlog.NewWriter(filepath.Join(t.TempDir(), "execution.log"))
	})
	h.capturer.skipUpload = true

	err := h.orch.Run(context.Background())

	require.ErrorIs(t, err, ErrLogWriteFailure)
	assert.Equal(t, StateStopped, h.orch.State())
	assert.Equal(t, 1, h.capturer.captures())
}

type failingLog struct{}

func (failingLog) AppendEntry(entry execlog.Entry) error { return errors.New("disk full") }

func TestRun_LogFailureIsFatal(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 3}, clickEveryTurn, func(d *Deps) { d.Log = failingLog{} })

	err := h.orch.Run(context.Background())

	require.ErrorIs(t, err, ErrLogWriteFailure)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, h.capturer.captures())
}

func TestRun_StopIsCheckedBetweenTurns(t *testing.T) {
	var h *harness
	respond := func(turn int) (*toolcall.Response, error) {
		if turn == 2 {
			h.orch.Stop()
		}
		return clickEveryTurn(turn)
	}
	h = newHarness(t, Config{}, respond, nil)

	err := h.orch.Run(context.Background())

	require.ErrorIs(t, err, ErrStopped)
	// the turn in flight when Stop was called is still logged
	assert.Len(t, h.entries(t), 2)
	assert.Equal(t, 2, h.capturer.captures())

	assert.ErrorIs(t, h.orch.Run(context.Background()), ErrStopped)
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	respond := func(turn int) (*toolcall.Response, error) {
		cancel()
		return clickEveryTurn(turn)
	}
	h := newHarness(t, Config{TurnDelay: time.Hour}, respond, nil)

	err := h.orch.Run(ctx)

	require.ErrorIs(t, err, ErrStopped)
	assert.Len(t, h.entries(t), 1)
}

func TestRun_TimeLimit(t *testing.T) {
	h := newHarness(t, Config{TimeLimit: time.Minute}, clickEveryTurn, nil)

	base := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	calls := 0
	h.orch.now = func() time.Time {
		calls++
		// each call advances the clock by 10s
		return base.Add(time.Duration(calls) * 10 * time.Second)
	}

	require.NoError(t, h.orch.Run(context.Background()))
	assert.NotEmpty(t, h.entries(t))
	assert.Less(t, h.capturer.captures(), 10)
}

func TestRun_PreviousStoryIsCarried(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 3}, clickEveryTurn, nil)

	require.NoError(t, h.orch.Run(context.Background()))

	require.Len(t, h.endpoint.observations, 3)
	assert.Empty(t, h.endpoint.observations[0].PreviousStory)
	assert.Equal(t, "turn 1", h.endpoint.observations[1].PreviousStory)
	assert.Equal(t, "turn 2", h.endpoint.observations[2].PreviousStory)
	assert.Equal(t, "step003.png", h.endpoint.observations[2].ScreenshotName)
	assert.Contains(t, h.endpoint.observations[0].Digest, "FRANZHUD")
}

func TestRun_MirrorsToRecorderAndArchive(t *testing.T) {
	archive, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	recorder := &fakeRecorder{}

	h := newHarness(t, Config{MaxIterations: 2}, clickEveryTurn, func(d *Deps) {
		d.Recorder = recorder
		d.Archive = archive
	})

	require.NoError(t, h.orch.Run(context.Background()))

	assert.Equal(t, []int{1, 2}, recorder.turns)
	for _, name := range []string{"step001.png", "step002.png"} {
		ok, err := archive.Exists(context.Background(), name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestRun_StatusIsSafeToRead(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 20}, clickEveryTurn, nil)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			default:
				_ = h.orch.State()
				_ = h.orch.Status()
			}
		}
	}()

	require.NoError(t, h.orch.Run(context.Background()))
	close(quit)
	<-done

	status := h.orch.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Equal(t, 20, status.Turn)
	assert.Equal(t, "step020.png", status.LastScreenshot)
	assert.Equal(t, execlog.OutcomeOK, status.LastOutcome)
	require.NotNil(t, status.StartedAt)
}

type fakeNarrator struct {
	mu      sync.Mutex
	stories []string
}

func (n *fakeNarrator) SetStory(story string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stories = append(n.stories, story)
}

func TestRun_NarratorReceivesStories(t *testing.T) {
	respond := func(turn int) (*toolcall.Response, error) {
		if turn == 2 {
			return call("click", `{"x":1}`), nil
		}
		return clickEveryTurn(turn)
	}
	narrator := &fakeNarrator{}
	h := newHarness(t, Config{MaxIterations: 3}, respond, func(d *Deps) { d.Narrator = narrator })

	require.NoError(t, h.orch.Run(context.Background()))

	assert.Equal(t, []string{"turn 1", "turn 3"}, narrator.stories)
}

func TestRun_PausedRunWaitsForResume(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 2}, clickEveryTurn, nil)
	h.orch.Pause()
	assert.True(t, h.orch.Status().Paused)

	result := make(chan error, 1)
	go func() { result <- h.orch.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(h.logger.Find("run paused")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.capturer.captures())

	h.orch.Resume()
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after resume")
	}
	assert.False(t, h.orch.Status().Paused)
	assert.Len(t, h.entries(t), 2)
	assert.Len(t, h.logger.Find("run resumed"), 1)
}

func TestRun_StopWhilePaused(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 5}, clickEveryTurn, nil)
	h.orch.Pause()

	result := make(chan error, 1)
	go func() { result <- h.orch.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(h.logger.Find("run paused")) == 1
	}, time.Second, 5*time.Millisecond)
	h.orch.Stop()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop while paused")
	}
	assert.Zero(t, h.capturer.captures())
	assert.Empty(t, h.entries(t))
}

func TestNewOrchestrator_MissingDependencies(t *testing.T) {
	_, err := NewOrchestrator(Config{}, Deps{}, logger.NewTestLogger())
	assert.ErrorIs(t, err, ErrMissingDependency)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = NewOrchestrator(Config{}, Deps{
		Capturer:    &fakeCapturer{store: store},
		Inspector:   fakeInspector{},
		Endpoint:    &fakeEndpoint{},
		Actuator:    &fakeActuator{},
		Log:         failingLog{},
		Screenshots: store,
	}, logger.NewTestLogger())
	assert.ErrorIs(t, err, toolcall.ErrEmptySpec)
}

func TestDefaultSampling(t *testing.T) {
	s := DefaultSampling()
	assert.Equal(t, 0.7, s.Temperature)
	assert.Equal(t, 0.8, s.TopP)
	assert.Equal(t, 20, s.TopK)
	assert.Equal(t, 800, s.MaxTokens)
	assert.Equal(t, 1.5, s.PresencePenalty)
	assert.Equal(t, int64(42), s.Seed)
	assert.NotNil(t, s.Stop)
}
