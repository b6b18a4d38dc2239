package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/academic-apex/apex-strategist/internal/models"
)

// openaiTransport speaks the OpenAI-compatible chat completion API. It covers
// runtimes that expose the compatibility surface instead of the native one.
type openaiTransport struct {
	client *openai.Client
	host   string
}

func newOpenAITransport(host, apiKey string, timeout time.Duration) (*openaiTransport, error) {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(host, "/") + "/v1"
	cfg.HTTPClient = &http.Client{Timeout: timeout + 10*time.Second}
	return &openaiTransport{
		client: openai.NewClientWithConfig(cfg),
		host:   host,
	}, nil
}

func (t *openaiTransport) name() string { return "openai" }

func (t *openaiTransport) ping(ctx context.Context) error {
	if _, err := t.client.ListModels(ctx); err != nil {
		return classifyOpenAIErr(err, false)
	}
	return nil
}

func (t *openaiTransport) listModels(ctx context.Context) ([]string, error) {
	resp, err := t.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAIErr(err, false)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func (t *openaiTransport) generate(ctx context.Context, in generateInput) (*Generation, error) {
	resp, err := t.client.CreateChatCompletion(ctx, t.buildRequest(in, false))
	if err != nil {
		return nil, classifyOpenAIErr(err, true)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, models.NewErrorInfo(models.ErrKindUpstreamError, "runtime returned an empty completion")
	}
	return &Generation{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		TokenCount:   resp.Usage.CompletionTokens,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}

func (t *openaiTransport) generateStream(ctx context.Context, in generateInput, fn func(chunk string) error) (*Generation, error) {
	stream, err := t.client.CreateChatCompletionStream(ctx, t.buildRequest(in, true))
	if err != nil {
		return nil, classifyOpenAIErr(err, true)
	}
	defer stream.Close()

	gen := Generation{Model: in.Model}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyOpenAIErr(err, true)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := fn(delta); err != nil {
			return nil, err
		}
		gen.Text += delta
	}
	return &gen, nil
}

func (t *openaiTransport) buildRequest(in generateInput, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: in.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: in.Prompt},
		},
		MaxTokens: in.MaxTokens,
		Stream:    stream,
	}
	if in.Temperature != nil {
		req.Temperature = float32(*in.Temperature)
	}
	if in.TopP != nil {
		req.TopP = float32(*in.TopP)
	}
	return req
}

func classifyOpenAIErr(err error, generating bool) *models.ErrorInfo {
	var info *models.ErrorInfo
	if errors.As(err, &info) {
		return info
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewErrorInfo(models.ErrKindTimeout, "inference runtime call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return models.NewErrorInfo(models.ErrKindTimeout, "inference runtime call canceled")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusNotFound && generating:
			return models.NewErrorInfo(models.ErrKindModelNotFound, "model is not available on the runtime: "+apiErr.Message)
		case apiErr.HTTPStatusCode >= 500:
			return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime error: "+apiErr.Message)
		default:
			return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime rejected the request: "+apiErr.Message)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime error: "+reqErr.Error())
		}
		return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime rejected the request: "+reqErr.Error())
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		if generating {
			return models.NewErrorInfo(models.ErrKindInvalidResponse, "runtime returned a malformed response: "+err.Error())
		}
		return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime returned a malformed response: "+err.Error())
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return models.NewErrorInfo(models.ErrKindTimeout, "inference runtime call timed out")
	}

	return models.NewErrorInfo(models.ErrKindNetworkUnavailable, "inference runtime unreachable: "+err.Error())
}
