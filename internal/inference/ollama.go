package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/academic-apex/apex-strategist/internal/models"
)

// ollamaTransport speaks the native Ollama HTTP API.
type ollamaTransport struct {
	client *api.Client
	host   string
}

func newOllamaTransport(host string, timeout time.Duration) (*ollamaTransport, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	httpClient := &http.Client{Timeout: timeout + 10*time.Second}
	return &ollamaTransport{
		client: api.NewClient(base, httpClient),
		host:   host,
	}, nil
}

func (t *ollamaTransport) name() string { return "ollama" }

func (t *ollamaTransport) ping(ctx context.Context) error {
	if _, err := t.client.Version(ctx); err != nil {
		return classifyOllamaErr(err, false)
	}
	return nil
}

func (t *ollamaTransport) listModels(ctx context.Context) ([]string, error) {
	resp, err := t.client.List(ctx)
	if err != nil {
		return nil, classifyOllamaErr(err, false)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (t *ollamaTransport) generate(ctx context.Context, in generateInput) (*Generation, error) {
	req := t.buildRequest(in, false)

	var gen Generation
	err := t.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		gen.Text += resp.Response
		if resp.Done {
			gen.Model = resp.Model
			gen.TokenCount = resp.EvalCount
			gen.PromptTokens = resp.PromptEvalCount
		}
		return nil
	})
	if err != nil {
		return nil, classifyOllamaErr(err, true)
	}
	if gen.Model == "" {
		gen.Model = in.Model
	}
	if strings.TrimSpace(gen.Text) == "" {
		return nil, models.NewErrorInfo(models.ErrKindUpstreamError, "runtime returned an empty completion")
	}
	return &gen, nil
}

func (t *ollamaTransport) generateStream(ctx context.Context, in generateInput, fn func(chunk string) error) (*Generation, error) {
	req := t.buildRequest(in, true)

	var gen Generation
	err := t.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response != "" {
			if err := fn(resp.Response); err != nil {
				return err
			}
			gen.Text += resp.Response
		}
		if resp.Done {
			gen.Model = resp.Model
			gen.TokenCount = resp.EvalCount
			gen.PromptTokens = resp.PromptEvalCount
		}
		return nil
	})
	if err != nil {
		return nil, classifyOllamaErr(err, true)
	}
	if gen.Model == "" {
		gen.Model = in.Model
	}
	return &gen, nil
}

func (t *ollamaTransport) buildRequest(in generateInput, stream bool) *api.GenerateRequest {
	opts := map[string]any{
		"num_predict": in.MaxTokens,
	}
	if in.Temperature != nil {
		opts["temperature"] = *in.Temperature
	}
	if in.TopP != nil {
		opts["top_p"] = *in.TopP
	}
	return &api.GenerateRequest{
		Model:   in.Model,
		Prompt:  in.Prompt,
		Stream:  &stream,
		Options: opts,
	}
}

// classifyOllamaErr maps a raw transport error to an ErrorInfo. A 404 during
// generation means the requested model is not pulled; on probe calls the
// endpoint itself is missing, which is an upstream fault.
func classifyOllamaErr(err error, generating bool) *models.ErrorInfo {
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

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound && generating:
			return models.NewErrorInfo(models.ErrKindModelNotFound, "model is not available on the runtime: "+statusErr.Error())
		case statusErr.StatusCode >= 500:
			return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime error: "+statusErr.Error())
		default:
			return models.NewErrorInfo(models.ErrKindUpstreamError, "runtime rejected the request: "+statusErr.Error())
		}
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
