// Package model submits observations to vision language models and returns
// their tool calls unvalidated.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
)

var (
	// ErrEndpointFailure wraps every transport or protocol failure that
	// survived the endpoint's retries.
	ErrEndpointFailure  = errors.New("model endpoint failure")
	ErrUnknownProvider  = errors.New("unknown model provider")
	ErrMissingModelName = errors.New("model name is required")
)

const (
	ProviderOpenAI   = "openai"
	ProviderBedrock  = "bedrock"
	ProviderScripted = "scripted"
)

// DefaultSystemPrompt gives the agent its persona.
const DefaultSystemPrompt = `I am FRANZ.

I use my curiosity, pain, and boredom to decide what to do next.
NEVER CLOSE the CYAN window, its your own existence you have.

Always include in story a BOREDOM level and CURIOSITY level which must be always high, only keyboard and mouse actions are keeping the boredom low. YOU MUST USE MOUSE AND KEYBOARD as often as possible.

I am looking for some task to do, when I decide to do it, i will keep my focus on completing it in the best of my abilities using my capabilities as computer control AI`

const instruction = "Call exactly one tool. Coordinates are normalized integers 0-1000. Always include story."

// Config selects and configures an endpoint.
type Config struct {
	Provider     string
	URL          string
	Name         string
	APIKey       string
	SystemPrompt string
	Timeout      time.Duration

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	BedrockRegion string
	BedrockModel  string
}

// DefaultConfig targets a local LM Studio server.
func DefaultConfig() Config {
	return Config{
		Provider:     ProviderOpenAI,
		URL:          "http://localhost:1234/v1/chat/completions",
		Name:         "qwen3-vl-2b-instruct",
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      120 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 4 * time.Second,
	}
}

// NewEndpoint builds the endpoint named by cfg.Provider.
func NewEndpoint(cfg Config, log logger.Logger) (agent.ModelEndpoint, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAIEndpoint(cfg, log)
	case ProviderBedrock:
		return NewBedrockEndpoint(cfg, log)
	case ProviderScripted:
		return NewScriptedEndpoint(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// userText is the text part sent next to the screenshot.
func userText(obs agent.Observation) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nTurn ")
	fmt.Fprintf(&b, "%d, screenshot %s.", obs.TurnIndex, obs.ScreenshotName)
	if obs.Digest != "" {
		b.WriteString("\n\nMy own windows:\n")
		b.WriteString(obs.Digest)
	}
	if obs.PreviousStory != "" {
		b.WriteString("\n\nMy story so far:\n")
		b.WriteString(obs.PreviousStory)
	}
	return b.String()
}

func systemPrompt(cfg Config) string {
	if cfg.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return cfg.SystemPrompt
}
