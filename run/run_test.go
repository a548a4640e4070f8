package run

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusRunning, StatusStopped, StatusFailed, StatusSuccess} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("paused").IsValid())
	assert.False(t, StatusRunning.IsFinal())
	assert.True(t, StatusStopped.IsFinal())
}

func TestRun_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Run{}).Validate(), ErrInvalidDir)
	assert.ErrorIs(t, (&Run{Dir: "dump/x", Status: "bogus"}).Validate(), ErrInvalidStatus)
	assert.NoError(t, (&Run{Dir: "dump/x"}).Validate())
}

func TestRun_Lifecycle(t *testing.T) {
	r := &Run{Dir: "dump/run_20240101_000000", Status: StatusCreated}

	assert.ErrorIs(t, r.Complete(StatusSuccess, nil), ErrRunNotRunning)

	require.NoError(t, r.Start())
	assert.Equal(t, StatusRunning, r.Status)
	require.NotNil(t, r.StartTime)
	assert.ErrorIs(t, r.Start(), ErrRunAlreadyStarted)

	assert.ErrorIs(t, r.Complete(StatusRunning, nil), ErrInvalidStatus)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, r.Complete(StatusStopped, JSONMap{"turns": 3}))
	assert.Equal(t, StatusStopped, r.Status)
	require.NotNil(t, r.EndTime)
	require.NotNil(t, r.Duration)
	assert.GreaterOrEqual(t, *r.Duration, int64(1))
	assert.Equal(t, 3, r.Result["turns"])
}

func TestJSONMap_Scan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, float64(1), m["a"])

	require.NoError(t, m.Scan(`{"b":"x"}`))
	assert.Equal(t, "x", m["b"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
	assert.Error(t, m.Scan([]byte("{")))
}

func TestJSONMap_ValueOfNil(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestTurn_Validate(t *testing.T) {
	valid := Turn{RunID: uuid.New(), TurnIndex: 1, ScreenshotName: "step001.png"}
	assert.NoError(t, valid.Validate())

	noRun := valid
	noRun.RunID = uuid.Nil
	assert.ErrorIs(t, noRun.Validate(), ErrInvalidRunID)

	zero := valid
	zero.TurnIndex = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidTurn)

	noImage := valid
	noImage.ScreenshotName = ""
	assert.ErrorIs(t, noImage.Validate(), ErrMissingImage)
}
