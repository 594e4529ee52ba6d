package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/types"
)

// ScanLz4 decompresses a single LZ4 frame into one child file.
type ScanLz4Scanner struct {
	coord *coordinator.Client
}

func newScanLz4(_ *config.Config, coord *coordinator.Client) (Scanner, error) {
	return &ScanLz4Scanner{coord: coord}, nil
}

// ValidateOptions checks the "limit" option's type at bootstrap.
func (s *ScanLz4Scanner) ValidateOptions(options map[string]any) error {
	_, err := parseLimit(options)
	return err
}

func (s *ScanLz4Scanner) ScanWrapper(ctx context.Context, data []byte, file *types.File, options map[string]any, expireAt time.Time) ([]*types.File, map[string]any, error) {
	if _, err := parseLimit(options); err != nil {
		return nil, nil, fmt.Errorf("scan_lz4: %w", err)
	}

	r := lz4.NewReader(bytes.NewReader(data))

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_lz4: decompress: %w", err)
	}

	child, err := pushChild(ctx, s.coord, file, file.Name+".out", "ScanLz4", content)
	if err != nil {
		return nil, nil, fmt.Errorf("scan_lz4: push: %w", err)
	}

	return []*types.File{child}, map[string]any{"ScanLz4": map[string]any{"total_extracted": 1}}, nil
}
