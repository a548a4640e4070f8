package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/hashicorp/go-retryablehttp"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// OpenAIEndpoint talks to an OpenAI-compatible chat completions API such as
// LM Studio. Tool use is forced with tool_choice "required".
type OpenAIEndpoint struct {
	url          string
	model        string
	apiKey       string
	systemPrompt string
	client       *retryablehttp.Client
	logger       logger.Logger
}

func NewOpenAIEndpoint(cfg Config, log logger.Logger) (*OpenAIEndpoint, error) {
	if cfg.Name == "" {
		return nil, ErrMissingModelName
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("model url is required")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = retryLogger{log: log}
	// keep the last response so its status and body can be reported
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &OpenAIEndpoint{
		url:          cfg.URL,
		model:        cfg.Name,
		apiKey:       cfg.APIKey,
		systemPrompt: systemPrompt(cfg),
		client:       client,
		logger:       log,
	}, nil
}

type chatRequest struct {
	Model            string                   `json:"model"`
	Messages         []chatMessage            `json:"messages"`
	Tools            []map[string]interface{} `json:"tools"`
	ToolChoice       string                   `json:"tool_choice"`
	Stream           bool                     `json:"stream"`
	Temperature      float64                  `json:"temperature"`
	TopP             float64                  `json:"top_p"`
	TopK             int                      `json:"top_k"`
	MaxTokens        int                      `json:"max_tokens"`
	PresencePenalty  float64                  `json:"presence_penalty"`
	FrequencyPenalty float64                  `json:"frequency_penalty"`
	RepeatPenalty    float64                  `json:"repeat_penalty"`
	Stop             []string                 `json:"stop"`
	Seed             int64                    `json:"seed"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *OpenAIEndpoint) buildRequest(obs agent.Observation, spec toolcall.Spec, s agent.Sampling) chatRequest {
	stop := s.Stop
	if stop == nil {
		stop = []string{}
	}
	return chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: e.systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(obs.Image)}},
				{Type: "text", Text: userText(obs)},
			}},
		},
		Tools:            spec.FunctionSchemas(),
		ToolChoice:       "required",
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		MaxTokens:        s.MaxTokens,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		RepeatPenalty:    s.RepeatPenalty,
		Stop:             stop,
		Seed:             s.Seed,
	}
}

// Submit sends one observation. Connection errors, 429 and 5xx responses are
// retried by the transport; whatever remains is reported as ErrEndpointFailure.
func (e *OpenAIEndpoint) Submit(ctx context.Context, obs agent.Observation, spec toolcall.Spec, sampling agent.Sampling) (*toolcall.Response, error) {
	payload, err := json.Marshal(e.buildRequest(obs, spec, sampling))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrEndpointFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEndpointFailure, resp.StatusCode, snippet(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEndpointFailure, err)
	}

	out := &toolcall.Response{Raw: string(body)}
	if len(parsed.Choices) > 0 {
		for _, tc := range parsed.Choices[0].Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, toolcall.RawCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	e.logger.Debug(ctx, "model responded", map[string]interface{}{
		"turn":       obs.TurnIndex,
		"tool_calls": len(out.ToolCalls),
		"bytes":      len(body),
	})
	return out, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
