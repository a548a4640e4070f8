//go:build !windows

package hud

import (
	"testing"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/stretchr/testify/assert"
)

func TestNew_Unsupported(t *testing.T) {
	d, err := New(Options{}, logger.NewTestLogger())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Nil(t, d)
}
