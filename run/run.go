package run

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidDir        = errors.New("run dir is required")
	ErrInvalidStatus     = errors.New("invalid run status")
	ErrRunAlreadyStarted = errors.New("run already started")
	ErrRunNotRunning     = errors.New("run is not running")
	ErrInvalidRunID      = errors.New("run_id is required")
	ErrInvalidTurn       = errors.New("turn index must be positive")
	ErrMissingImage      = errors.New("screenshot name is required")
)

type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusSuccess Status = "success"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusStopped, StatusFailed, StatusSuccess:
		return true
	}
	return false
}

// IsFinal reports whether a run in this status can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusSuccess
}

// JSONMap is a custom type for JSON columns.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = make(JSONMap)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONMap: unsupported type %T", value)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*j = m
	return nil
}

// Run is one invocation of the agent. Dir is the dump folder holding the
// screenshots and execution.log.
type Run struct {
	ID        uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Status    Status     `json:"status" gorm:"type:varchar(20);not null;default:'created';index:idx_runs_status"`
	Dir       string     `json:"dir" gorm:"type:varchar(512);not null"`
	ProcessID uint32     `json:"process_id" gorm:"not null;default:0"`
	Provider  string     `json:"provider" gorm:"type:varchar(32);not null;default:''"`
	Config    JSONMap    `json:"config" gorm:"type:json"`
	Result    JSONMap    `json:"result" gorm:"type:json"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusCreated
	}
	return nil
}

func (r *Run) Validate() error {
	if r.Dir == "" {
		return ErrInvalidDir
	}
	if r.Status != "" && !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Start marks the run as running.
func (r *Run) Start() error {
	if r.Status != StatusCreated {
		return ErrRunAlreadyStarted
	}
	now := time.Now()
	r.Status = StatusRunning
	r.StartTime = &now
	return nil
}

// Complete marks the run as finished with the given status and result.
func (r *Run) Complete(status Status, result JSONMap) error {
	if r.Status != StatusRunning {
		return ErrRunNotRunning
	}
	if !status.IsFinal() {
		return ErrInvalidStatus
	}
	now := time.Now()
	r.Status = status
	r.EndTime = &now
	r.Result = result
	if r.StartTime != nil {
		duration := now.Sub(*r.StartTime).Milliseconds()
		r.Duration = &duration
	}
	return nil
}

// Turn mirrors one execution log entry.
type Turn struct {
	ID             uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RunID          uuid.UUID `json:"run_id" gorm:"type:char(36);not null;uniqueIndex:idx_turns_run_turn"`
	TurnIndex      int       `json:"turn_index" gorm:"not null;uniqueIndex:idx_turns_run_turn"`
	ScreenshotName string    `json:"screenshot_name" gorm:"type:varchar(64);not null"`
	Action         string    `json:"action" gorm:"type:varchar(64);not null;default:''"`
	Outcome        string    `json:"outcome" gorm:"type:varchar(32);not null"`
	Story          string    `json:"story" gorm:"type:text"`
	Failure        string    `json:"failure" gorm:"type:text"`
	WindowCount    int       `json:"window_count" gorm:"not null;default:0"`
	LoggedAt       time.Time `json:"logged_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (t *Turn) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Turn) Validate() error {
	if t.RunID == uuid.Nil {
		return ErrInvalidRunID
	}
	if t.TurnIndex < 1 {
		return ErrInvalidTurn
	}
	if t.ScreenshotName == "" {
		return ErrMissingImage
	}
	return nil
}
