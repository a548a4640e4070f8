package agent

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/execlog"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/hairizuan-noorazman/desktop-agent/window"
)

var (
	// ErrCaptureFailure stops the run: a turn without a screenshot has
	// nothing to anchor its log entry to.
	ErrCaptureFailure = errors.New("screen capture failed")

	// ErrLogWriteFailure stops the run: an unlogged turn breaks the audit trail.
	ErrLogWriteFailure = errors.New("execution log write failed")

	// ErrStopped is returned when a run was interrupted by Stop or by its
	// context, and by Run on an orchestrator that already finished.
	ErrStopped = errors.New("run stopped")

	ErrMissingDependency = errors.New("missing orchestrator dependency")
)

// State is the orchestrator's position in the turn cycle.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateRequesting State = "requesting"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateLogging    State = "logging"
	StateStopped    State = "stopped"
)

// Observation is everything the model sees for one turn.
type Observation struct {
	TurnIndex      int
	ScreenshotName string
	Image          []byte // PNG
	Windows        []window.Snapshot
	Digest         string
	// PreviousStory is the narrative returned on the last valid turn.
	PreviousStory string
}

// Sampling holds the generation parameters sent with every request. Every
// field is sent explicitly; nothing falls back to a server default.
type Sampling struct {
	Temperature      float64  `mapstructure:"temperature" json:"temperature"`
	TopP             float64  `mapstructure:"top_p" json:"top_p"`
	TopK             int      `mapstructure:"top_k" json:"top_k"`
	MaxTokens        int      `mapstructure:"max_tokens" json:"max_tokens"`
	PresencePenalty  float64  `mapstructure:"presence_penalty" json:"presence_penalty"`
	FrequencyPenalty float64  `mapstructure:"frequency_penalty" json:"frequency_penalty"`
	RepeatPenalty    float64  `mapstructure:"repeat_penalty" json:"repeat_penalty"`
	Stop             []string `mapstructure:"stop" json:"stop"`
	Seed             int64    `mapstructure:"seed" json:"seed"`
}

// DefaultSampling returns the parameters tuned for small vision models.
func DefaultSampling() Sampling {
	return Sampling{
		Temperature:      0.7,
		TopP:             0.8,
		TopK:             20,
		MaxTokens:        800,
		PresencePenalty:  1.5,
		FrequencyPenalty: 0,
		RepeatPenalty:    1.0,
		Stop:             []string{},
		Seed:             42,
	}
}

// ScreenCapturer takes the turn's screenshot and persists it. The returned
// name is the stored file name and is reused verbatim in the log.
type ScreenCapturer interface {
	Capture(ctx context.Context, region image.Rectangle) (string, error)
	// LastImage returns the encoded bytes of the most recent capture.
	LastImage() []byte
}

type WindowInspector interface {
	CaptureProcessWindows(ctx context.Context) []window.Snapshot
}

// ModelEndpoint submits an observation and must answer with the model's
// tool calls. Retrying transport errors is the endpoint's concern.
type ModelEndpoint interface {
	Submit(ctx context.Context, obs Observation, spec toolcall.Spec, sampling Sampling) (*toolcall.Response, error)
}

type InputActuator interface {
	Execute(ctx context.Context, action toolcall.Action) error
}

type LogWriter interface {
	AppendEntry(entry execlog.Entry) error
}

// TurnRecorder mirrors logged turns somewhere queryable. Failures are
// reported but never stop a run.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, entry execlog.Entry) error
}

// Narrator shows the story of each valid turn to whoever watches the run.
type Narrator interface {
	SetStory(story string)
}

// Status is a point-in-time view of a running orchestrator.
type Status struct {
	State          State           `json:"state"`
	Turn           int             `json:"turn"`
	Paused         bool            `json:"paused"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	LastScreenshot string          `json:"last_screenshot,omitempty"`
	LastOutcome    execlog.Outcome `json:"last_outcome,omitempty"`
}
