package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/types"
)

// ScanBrotli decompresses a single brotli stream into one child file.
type ScanBrotliScanner struct {
	coord *coordinator.Client
}

func newScanBrotli(_ *config.Config, coord *coordinator.Client) (Scanner, error) {
	return &ScanBrotliScanner{coord: coord}, nil
}

// ValidateOptions checks the "limit" option's type at bootstrap.
func (s *ScanBrotliScanner) ValidateOptions(options map[string]any) error {
	_, err := parseLimit(options)
	return err
}

func (s *ScanBrotliScanner) ScanWrapper(ctx context.Context, data []byte, file *types.File, options map[string]any, expireAt time.Time) ([]*types.File, map[string]any, error) {
	if _, err := parseLimit(options); err != nil {
		return nil, nil, fmt.Errorf("scan_brotli: %w", err)
	}

	r := brotli.NewReader(bytes.NewReader(data))

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_brotli: decompress: %w", err)
	}

	child, err := pushChild(ctx, s.coord, file, file.Name+".out", "ScanBrotli", content)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_brotli: push: %w", err)
	}

	return []*types.File{child}, map[string]any{"ScanBrotli": map[string]any{"total_extracted": 1}}, nil
}
