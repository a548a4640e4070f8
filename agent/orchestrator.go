package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/execlog"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/storage"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/hairizuan-noorazman/desktop-agent/window"
)

// Deps are the collaborators of an Orchestrator. Recorder, Archive and
// Narrator are optional.
type Deps struct {
	Capturer  ScreenCapturer
	Inspector WindowInspector
	Endpoint  ModelEndpoint
	Actuator  InputActuator
	Log       LogWriter
	// Screenshots is where Capturer stores images. It is consulted before
	// each log append.
	Screenshots storage.BlobStorage
	Spec        toolcall.Spec
	Identity    window.Identity

	Recorder TurnRecorder
	// Archive receives a copy of each screenshot once its turn is logged.
	Archive  storage.BlobStorage
	Narrator Narrator
}

// Orchestrator runs turns strictly one after another on the calling
// goroutine. Only State, Status, Pause, Resume and Stop may be called from
// other goroutines.
type Orchestrator struct {
	config Config
	deps   Deps
	logger logger.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	mu            sync.RWMutex
	paused        bool
	resumeCh      chan struct{}
	state         State
	turn          int
	startedAt     *time.Time
	lastImage     string
	lastOutcome   execlog.Outcome
	previousStory string
}

// NewOrchestrator validates deps and returns an idle orchestrator.
func NewOrchestrator(config Config, deps Deps, log logger.Logger) (*Orchestrator, error) {
	switch {
	case deps.Capturer == nil:
		return nil, fmt.Errorf("%w: screen capturer", ErrMissingDependency)
	case deps.Inspector == nil:
		return nil, fmt.Errorf("%w: window inspector", ErrMissingDependency)
	case deps.Endpoint == nil:
		return nil, fmt.Errorf("%w: model endpoint", ErrMissingDependency)
	case deps.Actuator == nil:
		return nil, fmt.Errorf("%w: input actuator", ErrMissingDependency)
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: log writer", ErrMissingDependency)
	case deps.Screenshots == nil:
		return nil, fmt.Errorf("%w: screenshot storage", ErrMissingDependency)
	}
	if err := deps.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("tool spec: %w", err)
	}

	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: log,
		now:    time.Now,
		stopCh: make(chan struct{}),
		state:  StateIdle,
	}, nil
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		State:          o.state,
		Turn:           o.turn,
		Paused:         o.paused,
		StartedAt:      o.startedAt,
		LastScreenshot: o.lastImage,
		LastOutcome:    o.lastOutcome,
	}
}

// Stop asks the run to end. It takes effect before the next turn starts.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// Pause holds the run before its next turn until Resume is called. A turn
// already in progress completes.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		o.paused = true
		o.resumeCh = make(chan struct{})
	}
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		o.paused = false
		close(o.resumeCh)
	}
}

// waitResumed blocks while the run is paused. Stop and ctx end the wait; the
// caller's stop check reports them.
func (o *Orchestrator) waitResumed(ctx context.Context) {
	o.mu.RLock()
	paused, resume := o.paused, o.resumeCh
	o.mu.RUnlock()
	if !paused {
		return
	}

	o.logger.Info(ctx, "run paused", map[string]interface{}{
		"turn": o.Status().Turn,
	})
	select {
	case <-resume:
		o.logger.Info(ctx, "run resumed", map[string]interface{}{
			"turn": o.Status().Turn,
		})
	case <-o.stopCh:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	turn := o.turn
	o.mu.Unlock()

	o.logger.Debug(ctx, "state transition", map[string]interface{}{
		"from": string(prev),
		"to":   string(s),
		"turn": turn,
	})
}

// Run drives turns until a stop condition holds. It returns nil when the
// iteration or time limit is reached, ErrStopped when interrupted, and an
// error wrapping ErrCaptureFailure or ErrLogWriteFailure on fatal failures.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateStopped || o.startedAt != nil {
		o.mu.Unlock()
		return ErrStopped
	}
	started := o.now()
	o.startedAt = &started
	o.mu.Unlock()

	defer o.setState(ctx, StateStopped)

	o.logger.Info(ctx, "starting run", map[string]interface{}{
		"pid":            o.deps.Identity.PID,
		"process":        o.deps.Identity.ProcessName,
		"max_iterations": o.config.MaxIterations,
		"time_limit":     o.config.TimeLimit.String(),
		"tools":          o.deps.Spec.Names(),
	})

	for {
		o.waitResumed(ctx)
		if done, err := o.checkStop(ctx, started); done {
			o.logger.Info(ctx, "run finished", map[string]interface{}{
				"turns":  o.Status().Turn,
				"reason": stopReason(err),
			})
			return err
		}

		if err := o.runTurn(ctx); err != nil {
			o.logger.Error(ctx, "run aborted", map[string]interface{}{
				"turn":  o.Status().Turn,
				"error": err.Error(),
			})
			return err
		}

		if err := o.delay(ctx); err != nil {
			return err
		}
	}
}

// checkStop is evaluated at the Idle to Capturing boundary only.
func (o *Orchestrator) checkStop(ctx context.Context, started time.Time) (bool, error) {
	select {
	case <-o.stopCh:
		return true, ErrStopped
	default:
	}
	if err := ctx.Err(); err != nil {
		return true, fmt.Errorf("%w: %v", ErrStopped, err)
	}
	if o.config.MaxIterations > 0 && o.Status().Turn >= o.config.MaxIterations {
		return true, nil
	}
	if o.config.TimeLimit > 0 && o.now().Sub(started) >= o.config.TimeLimit {
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) delay(ctx context.Context) error {
	if o.config.TurnDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(o.config.TurnDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-o.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStopped, ctx.Err())
	}
}

func stopReason(err error) string {
	if err == nil {
		return "limit reached"
	}
	return err.Error()
}

func (o *Orchestrator) runTurn(ctx context.Context) error {
	o.mu.Lock()
	o.turn++
	turn := o.turn
	story := o.previousStory
	o.mu.Unlock()

	o.setState(ctx, StateCapturing)
	name, err := o.deps.Capturer.Capture(ctx, o.config.Region)
	if err != nil {
		return fmt.Errorf("%w: turn %d: %v", ErrCaptureFailure, turn, err)
	}
	windows := o.deps.Inspector.CaptureProcessWindows(ctx)

	entry := execlog.Entry{
		TurnIndex:      turn,
		ProcessID:      o.deps.Identity.PID,
		ScreenshotName: name,
		Windows:        windows,
	}

	o.setState(ctx, StateRequesting)
	obs := Observation{
		TurnIndex:      turn,
		ScreenshotName: name,
		Image:          o.deps.Capturer.LastImage(),
		Windows:        windows,
		Digest:         window.Digest(windows),
		PreviousStory:  story,
	}
	resp, err := o.deps.Endpoint.Submit(ctx, obs, o.deps.Spec, o.config.Sampling)
	if err != nil {
		entry.Outcome = execlog.OutcomeEndpointFailure
		entry.Failure = err.Error()
	} else {
		o.execute(ctx, resp, &entry)
	}

	o.setState(ctx, StateLogging)
	entry.Timestamp = o.now()
	if err := o.appendEntry(ctx, entry); err != nil {
		return err
	}

	o.mu.Lock()
	o.lastImage = name
	o.lastOutcome = entry.Outcome
	if entry.Outcome == execlog.OutcomeOK && entry.Story != "" {
		o.previousStory = entry.Story
	}
	o.mu.Unlock()

	if o.deps.Narrator != nil && entry.Story != "" {
		o.deps.Narrator.SetStory(entry.Story)
	}

	fields := map[string]interface{}{
		"turn":    turn,
		"image":   name,
		"outcome": string(entry.Outcome),
		"windows": len(windows),
	}
	if entry.Action != "" {
		fields["action"] = entry.Action
	}
	if entry.Failure != "" {
		fields["failure"] = entry.Failure
	}
	o.logger.Info(ctx, "turn completed", fields)

	o.mirror(ctx, entry)
	o.setState(ctx, StateIdle)
	return nil
}

// execute validates resp and hands the resulting action to the actuator,
// recording the outcome on entry.
func (o *Orchestrator) execute(ctx context.Context, resp *toolcall.Response, entry *execlog.Entry) {
	o.setState(ctx, StateValidating)
	call, err := toolcall.Validate(resp, o.deps.Spec)
	var action toolcall.Action
	if err == nil {
		action, err = toolcall.Decode(call)
	}
	if err != nil {
		entry.Outcome = execlog.OutcomeInvalidToolCall
		entry.Failure = err.Error()
		if resp != nil {
			entry.Raw = resp.Raw
			if len(resp.ToolCalls) == 1 {
				entry.Action = resp.ToolCalls[0].Name
			}
		}
		return
	}

	entry.Action = call.Name
	entry.Story = call.Story

	o.setState(ctx, StateExecuting)
	if err := o.deps.Actuator.Execute(ctx, action); err != nil {
		entry.Outcome = execlog.OutcomeExecutionFailure
		entry.Failure = err.Error()
		return
	}
	entry.Outcome = execlog.OutcomeOK
}

// appendEntry writes entry only once its screenshot is confirmed stored.
func (o *Orchestrator) appendEntry(ctx context.Context, entry execlog.Entry) error {
	exists, err := o.deps.Screenshots.Exists(ctx, entry.ScreenshotName)
	if err != nil {
		return fmt.Errorf("%w: turn %d: check %s: %v", ErrLogWriteFailure, entry.TurnIndex, entry.ScreenshotName, err)
	}
	if !exists {
		return fmt.Errorf("%w: turn %d: screenshot %s is not stored", ErrLogWriteFailure, entry.TurnIndex, entry.ScreenshotName)
	}
	if err := o.deps.Log.AppendEntry(entry); err != nil {
		return fmt.Errorf("%w: turn %d: %v", ErrLogWriteFailure, entry.TurnIndex, err)
	}
	return nil
}

// mirror copies a logged turn to the optional recorder and archive.
func (o *Orchestrator) mirror(ctx context.Context, entry execlog.Entry) {
	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.RecordTurn(ctx, entry); err != nil {
			o.logger.Warn(ctx, "failed to record turn", map[string]interface{}{
				"turn":  entry.TurnIndex,
				"error": err.Error(),
			})
		}
	}

	if o.deps.Archive == nil {
		return
	}
	if err := storage.Copy(ctx, o.deps.Archive, o.deps.Screenshots, entry.ScreenshotName); err != nil {
		o.logger.Warn(ctx, "failed to archive screenshot", map[string]interface{}{
			"turn":  entry.TurnIndex,
			"image": entry.ScreenshotName,
			"error": err.Error(),
		})
	}
}
