package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/iox"
	"github.com/pithecene-io/triage/types"
)

// ScanGzip decompresses a single gzip stream into one child file, named
// from the gzip header when present.
type ScanGzipScanner struct {
	coord *coordinator.Client
}

func newScanGzip(_ *config.Config, coord *coordinator.Client) (Scanner, error) {
	return &ScanGzipScanner{coord: coord}, nil
}

// ValidateOptions checks the "limit" option's type at bootstrap. A single
// gzip stream only ever yields one child, so limit has nothing to cap,
// but a malformed value should still fail fast rather than silently
// being ignored.
func (s *ScanGzipScanner) ValidateOptions(options map[string]any) error {
	_, err := parseLimit(options)
	return err
}

func (s *ScanGzipScanner) ScanWrapper(ctx context.Context, data []byte, file *types.File, options map[string]any, expireAt time.Time) ([]*types.File, map[string]any, error) {
	if _, err := parseLimit(options); err != nil {
		return nil, nil, fmt.Errorf("scan_gzip: %w", err)
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("scan_gzip: %w", err)
	}
	defer iox.DiscardClose(r)

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_gzip: inflate: %w", err)
	}

	name := r.Name
	if name == "" {
		name = file.Name + ".out"
	}

	child, err := pushChild(ctx, s.coord, file, name, "ScanGzip", content)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_gzip: push: %w", err)
	}

	return []*types.File{child}, map[string]any{"ScanGzip": map[string]any{"total_extracted": 1}}, nil
}
