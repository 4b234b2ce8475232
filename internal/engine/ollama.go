package engine

import (
	"context"
	"fmt"

	"github.com/borisletic/lti-qa-tool/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
// Every transport or status failure is reported as ErrBackendUnavailable.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string, opts ...ollama.Option) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL, opts...)}
}

func (e *OllamaEngine) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error) {
	out, err := e.client.Generate(ctx, model, prompt, ollama.Options{
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		NumPredict:  opts.NumPredict,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return out, nil
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return vec, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

// Compile-time check.
var _ Engine = (*OllamaEngine)(nil)
