package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/borisletic/lti-qa-tool/internal/extract"
)

// Report summarises a folder ingest.
type Report struct {
	Files     []Outcome `json:"files"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

// Dir ingests every supported, non-hidden file directly inside dir in name
// order. Failures are recorded per file and do not stop the batch; only a
// cancelled context or an unreadable dir end it early.
func Dir(ctx context.Context, idx Indexer, docs DocumentStore, course, dir string) (Report, error) {
	paths, err := SupportedFiles(dir)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		out, err := File(ctx, idx, docs, course, path)
		rep.Files = append(rep.Files, out)
		if err != nil {
			rep.Failed++
			slog.Warn("ingest failed", "course", course, "file", out.Filename, "error", err)
			continue
		}
		rep.Succeeded++
	}
	return rep, nil
}

// SupportedFiles lists the ingestible files directly inside dir, sorted by
// name. Hidden files and unsupported types are skipped.
func SupportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !include(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func include(name string) bool {
	return !strings.HasPrefix(name, ".") && extract.Supported(name)
}
