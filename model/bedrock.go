package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
)

// converser is the part of the Bedrock runtime client used here.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockEndpoint uses the Bedrock Converse API with tool choice "any", which
// forces the model to answer with a tool call.
type BedrockEndpoint struct {
	client       converser
	modelID      string
	systemPrompt string
	logger       logger.Logger
}

// NewBedrockEndpoint loads AWS credentials from the default chain. The SDK's
// standard retryer bounds retries of throttled or failed calls.
func NewBedrockEndpoint(cfg Config, log logger.Logger) (*BedrockEndpoint, error) {
	if cfg.BedrockModel == "" {
		return nil, ErrMissingModelName
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.BedrockRegion)}
	if cfg.RetryMax > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.RetryMax+1))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newBedrockEndpoint(bedrockruntime.NewFromConfig(awsCfg), cfg, log), nil
}

func newBedrockEndpoint(client converser, cfg Config, log logger.Logger) *BedrockEndpoint {
	return &BedrockEndpoint{
		client:       client,
		modelID:      cfg.BedrockModel,
		systemPrompt: systemPrompt(cfg),
		logger:       log,
	}
}

func (e *BedrockEndpoint) buildInput(obs agent.Observation, spec toolcall.Spec, s agent.Sampling) *bedrockruntime.ConverseInput {
	tools := make([]types.Tool, 0, len(spec.Tools))
	for _, t := range spec.Tools {
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.ParametersSchema())},
		}})
	}

	inference := &types.InferenceConfiguration{
		Temperature: aws.Float32(float32(s.Temperature)),
		TopP:        aws.Float32(float32(s.TopP)),
	}
	// Converse rejects a zero token limit, so zero leaves the model default
	if s.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(s.MaxTokens))
	}
	inference.StopSequences = s.Stop
	if inference.StopSequences == nil {
		inference.StopSequences = []string{}
	}

	return &bedrockruntime.ConverseInput{
		ModelId: aws.String(e.modelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: e.systemPrompt}},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberImage{Value: types.ImageBlock{
					Format: types.ImageFormatPng,
					Source: &types.ImageSourceMemberBytes{Value: obs.Image},
				}},
				&types.ContentBlockMemberText{Value: userText(obs)},
			},
		}},
		InferenceConfig: inference,
		ToolConfig: &types.ToolConfiguration{
			Tools:      tools,
			ToolChoice: &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}},
		},
		AdditionalModelRequestFields: document.NewLazyDocument(additionalFields(s)),
	}
}

// additionalFields carries the sampling parameters Converse has no field for.
// They are passed to the model family as native request fields.
func additionalFields(s agent.Sampling) map[string]interface{} {
	return map[string]interface{}{
		"top_k":             s.TopK,
		"presence_penalty":  s.PresencePenalty,
		"frequency_penalty": s.FrequencyPenalty,
		"repeat_penalty":    s.RepeatPenalty,
		"seed":              s.Seed,
	}
}

type bedrockToolUse struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (e *BedrockEndpoint) Submit(ctx context.Context, obs agent.Observation, spec toolcall.Spec, sampling agent.Sampling) (*toolcall.Response, error) {
	out, err := e.client.Converse(ctx, e.buildInput(obs, spec, sampling))
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s: %s", ErrEndpointFailure, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("%w: %v", ErrEndpointFailure, err)
	}

	resp := &toolcall.Response{}
	var uses []bedrockToolUse

	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			use, ok := block.(*types.ContentBlockMemberToolUse)
			if !ok {
				continue
			}
			var input json.RawMessage
			if use.Value.Input != nil {
				input, err = use.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, fmt.Errorf("%w: decode tool input: %v", ErrEndpointFailure, err)
				}
			}
			name := aws.ToString(use.Value.Name)
			resp.ToolCalls = append(resp.ToolCalls, toolcall.RawCall{Name: name, Arguments: input})
			uses = append(uses, bedrockToolUse{Name: name, Input: input})
		}
	}

	raw, err := json.Marshal(map[string]interface{}{
		"stop_reason": string(out.StopReason),
		"tool_uses":   uses,
	})
	if err == nil {
		resp.Raw = string(raw)
	}

	e.logger.Debug(ctx, "bedrock responded", map[string]interface{}{
		"turn":        obs.TurnIndex,
		"tool_calls":  len(resp.ToolCalls),
		"stop_reason": string(out.StopReason),
	})
	return resp, nil
}
