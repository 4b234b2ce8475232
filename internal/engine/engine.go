package engine

import (
	"context"
	"errors"
)

// ErrBackendUnavailable is returned when the inference backend cannot be
// reached, answers with a non-2xx status, times out, or returns an empty
// result.
var ErrBackendUnavailable = errors.New("inference backend unavailable")

// Engine abstracts a local inference backend. The retrieval pipeline uses it
// for both embedding and generation instead of depending on a concrete client.
type Engine interface {
	// Generate sends a single prompt to the given model and returns the completion.
	Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
