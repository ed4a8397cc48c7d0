package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/tools"
	"stock-analyst/pkg/utils"
)

// OpenAIConfig configures the OpenAI planner.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Retry     utils.RetryConfig
}

// OpenAIPlanner asks a chat model for an action list.
type OpenAIPlanner struct {
	client    *openai.Client
	model     string
	maxTokens int
	retry     utils.RetryConfig
	logger    zerolog.Logger
}

var _ Planner = (*OpenAIPlanner)(nil)

// NewOpenAIPlanner creates a planner. An API key is required.
func NewOpenAIPlanner(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIPlanner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.Wrap(errors.ErrConfigInvalid, "OpenAI API key is required for prompt planning")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = isTransient
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIPlanner{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
		logger:    logging.WithComponent(logger, "planner"),
	}, nil
}

// Plan sends the prompt with the tool definitions and converts the reply into
// a validated plan. Tool calls become actions in call order; a reply without
// tool calls is parsed as a JSON action list.
func (p *OpenAIPlanner) Plan(ctx context.Context, prompt string) (engine.Plan, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return engine.Plan{}, errors.Wrap(errors.ErrPlanInvalid, "prompt is empty")
	}

	p.logger.Info().Str("prompt", prompt).Msg("Planning prompt")
	start := time.Now()

	msg, err := utils.RetryWithResult(ctx, p.retry, func() (openai.ChatCompletionMessage, error) {
		return p.complete(ctx, prompt)
	})
	logging.LogAPICall(p.logger, "POST", "chat/completions", time.Since(start), err)
	if err != nil {
		return engine.Plan{}, err
	}

	var actions []Action
	if len(msg.ToolCalls) > 0 {
		p.logger.Debug().Int("tool_calls", len(msg.ToolCalls)).Msg("Planner replied with tool calls")
		actions, err = ActionsFromToolCalls(msg.ToolCalls)
	} else {
		p.logger.Debug().Str("response", msg.Content).Msg("Raw planner response")
		actions, err = ParseActions(msg.Content)
	}
	if err != nil {
		return engine.Plan{}, err
	}
	plan, err := FromActions(actions)
	if err != nil {
		return engine.Plan{}, err
	}
	if err := engine.Validate(plan); err != nil {
		return engine.Plan{}, err
	}

	p.logger.Info().Int("steps", len(plan.Steps)).Msg("Prompt planned")
	return plan, nil
}

func (p *OpenAIPlanner) complete(ctx context.Context, prompt string) (openai.ChatCompletionMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools:               tools.Definitions(),
		MaxCompletionTokens: p.maxTokens,
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, errors.Wrap(err, "openai completion failed")
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("no response from openai")
	}
	return resp.Choices[0].Message, nil
}

// ActionsFromToolCalls converts function tool calls into actions, in call
// order. The optional description argument becomes the action description.
func ActionsFromToolCalls(calls []openai.ToolCall) ([]Action, error) {
	actions := make([]Action, 0, len(calls))
	for i, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, errors.Wrapf(errors.ErrPlanInvalid, "tool call %d has no function name", i+1)
		}

		args := map[string]interface{}{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
			dec.UseNumber()
			if err := dec.Decode(&args); err != nil {
				return nil, errors.Wrapf(errors.ErrPlanInvalid, "tool call %d (%s) has invalid arguments: %v", i+1, name, err)
			}
		}

		var description string
		if d, ok := args[tools.DescriptionArg].(string); ok {
			description = d
		}
		delete(args, tools.DescriptionArg)

		actions = append(actions, Action{Tool: name, Args: args, Description: description})
	}
	return actions, nil
}

// isTransient reports whether an OpenAI error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
