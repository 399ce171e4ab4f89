package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/roach88/shadowai/internal/errs"
	"github.com/roach88/shadowai/internal/ir"
)

// Request is one outbound batch: the PII-free payload items plus the
// prompt version to pin and, on a schema-retry, the error context added to
// steer the model away from the previous failure.
type Request struct {
	Items         []PayloadItem
	PromptVersion string
	ErrorContext  string
}

// Response is the raw chat-completion body, expected to decode as a JSON
// array with one verdict object per requested signature.
type Response struct {
	Raw []byte
}

// Analyzer sends a batch to an LLM backend and returns its raw response,
// classifying any failure into the closed ir.ErrorKind taxonomy via
// errs.AnalyzerError. Tests inject a fake; production wires OpenAIAnalyzer.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
}

// OpenAIAnalyzer sends requests through an OpenAI-compatible
// chat-completions endpoint. The base URL is configurable so any
// compatible gateway, not just api.openai.com, can serve requests.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIAnalyzer builds an analyzer from an API key, optional base URL
// override, and model name.
func NewOpenAIAnalyzer(apiKey, baseURL, model string) *OpenAIAnalyzer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIAnalyzer{client: &client, model: openai.ChatModel(model)}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (Response, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Response{}, &errs.AnalyzerError{Kind: ir.ErrorKindInvalidRequest, Err: err}
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return Response{}, classifyTransportError(err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, &errs.AnalyzerError{Kind: ir.ErrorKindJSONParse, Err: fmt.Errorf("empty choices")}
	}

	return Response{Raw: []byte(completion.Choices[0].Message.Content)}, nil
}

const systemPrompt = `You classify web-access signatures for unsanctioned generative-AI usage. ` +
	`Respond with a JSON object {"verdicts": [...]} containing exactly one verdict per signature, ` +
	`in the order given, following the supplied schema. Never include raw URLs, IP addresses, or user identifiers.`

func buildPrompt(req Request) (string, error) {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return "", fmt.Errorf("marshal payload items: %w", err)
	}
	prompt := fmt.Sprintf("prompt_version=%s\nsignatures=%s", req.PromptVersion, items)
	if req.ErrorContext != "" {
		prompt += "\nprevious_error=" + req.ErrorContext
	}
	return prompt, nil
}

// classifyTransportError maps an openai-go transport/API error to the
// closed ir.ErrorKind taxonomy (§7) so callers never string-match on
// provider error text.
func classifyTransportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &errs.AnalyzerError{Kind: ir.ErrorKindRateLimit, Err: err}
		case apiErr.StatusCode == 401:
			return &errs.AnalyzerError{Kind: ir.ErrorKindInvalidAPIKey, Err: err}
		case apiErr.StatusCode == 403:
			return &errs.AnalyzerError{Kind: ir.ErrorKindAuthentication, Err: err}
		case apiErr.StatusCode == 400:
			return &errs.AnalyzerError{Kind: ir.ErrorKindInvalidRequest, Err: err}
		case apiErr.StatusCode >= 500:
			return &errs.AnalyzerError{Kind: ir.ErrorKindServerError, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.AnalyzerError{Kind: ir.ErrorKindTimeout, Err: err}
	}
	return &errs.AnalyzerError{Kind: ir.ErrorKindNetwork, Err: err}
}
