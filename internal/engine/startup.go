package engine

import (
	"context"
	"fmt"
	"io"
)

// requiredModel is a model the tool cannot answer without.
type requiredModel struct {
	role string
	name string
}

// EnsureReady verifies that Ollama is reachable and that the answer and
// embedding models are installed, downloading any that are missing. Progress
// is reported on w, one line per status change.
func EnsureReady(ctx context.Context, e Engine, generateModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%w: ollama is not running; start it with `ollama serve`", ErrBackendUnavailable)
	}

	var required []requiredModel
	if generateModel != "" {
		required = append(required, requiredModel{"answer", generateModel})
	}
	if embedModel != "" && embedModel != generateModel {
		required = append(required, requiredModel{"embedding", embedModel})
	}

	for _, m := range required {
		if e.HasModel(ctx, m.name) {
			fmt.Fprintf(w, "%s model %s is installed\n", m.role, m.name)
			continue
		}

		fmt.Fprintf(w, "%s model %s not found locally, downloading from the Ollama registry\n", m.role, m.name)
		if err := e.PullModel(ctx, m.name, downloadReporter(w)); err != nil {
			return fmt.Errorf("downloading %s model %s: %w", m.role, m.name, err)
		}
		fmt.Fprintf(w, "%s model %s downloaded\n", m.role, m.name)
	}
	return nil
}

// downloadReporter prints a progress line whenever the pull status or the
// whole-percent completion changes.
func downloadReporter(w io.Writer) func(PullProgress) {
	lastStatus, lastPct := "", -1
	return func(p PullProgress) {
		pct := -1
		if p.Total > 0 {
			pct = int(p.Completed * 100 / p.Total)
		}
		if p.Status == lastStatus && pct == lastPct {
			return
		}
		lastStatus, lastPct = p.Status, pct
		if pct < 0 {
			fmt.Fprintf(w, "    %s\n", p.Status)
			return
		}
		fmt.Fprintf(w, "    %s (%d%%)\n", p.Status, pct)
	}
}
