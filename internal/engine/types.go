package engine

import "time"

// GenerateOptions are the sampling parameters for a generation request.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	NumPredict  int
}

// DefaultGenerateOptions returns the sampling parameters used for course answers.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature: 0.3,
		TopP:        0.9,
		NumPredict:  512,
	}
}

// DefaultGenerateTimeout bounds a single generation request.
const DefaultGenerateTimeout = 60 * time.Second

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
