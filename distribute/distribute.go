// Package distribute implements the distributor (C5): processing one file
// node through classification and its assigned scanners, emitting its
// event, and surfacing any child files for the caller to recurse into.
package distribute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pithecene-io/triage/assign"
	"github.com/pithecene-io/triage/classify"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/log"
	"github.com/pithecene-io/triage/metrics"
	"github.com/pithecene-io/triage/scanner"
	"github.com/pithecene-io/triage/types"
)

// Config bounds one distribution.
type Config struct {
	MaxDepth            int
	DistributionTimeout time.Duration
	ScannerNames        []string
}

// Distributor runs one file through tasting and assignment, invokes each
// assigned scanner, and emits a single event for the node.
type Distributor struct {
	coord      *coordinator.Client
	classifier *classify.Classifier
	engine     *assign.Engine
	registry   *scanner.Registry
	metrics    *metrics.Collector
	logger     *log.Logger
	cfg        Config
}

// New builds a Distributor.
func New(coord *coordinator.Client, classifier *classify.Classifier, engine *assign.Engine, registry *scanner.Registry, collector *metrics.Collector, logger *log.Logger, cfg Config) *Distributor {
	return &Distributor{
		coord:      coord,
		classifier: classifier,
		engine:     engine,
		registry:   registry,
		metrics:    collector,
		logger:     logger,
		cfg:        cfg,
	}
}

// Distribute processes one file node under the enclosing request's ctx.
// err is non-nil only for faults that must abort the whole request
// (request timeout propagating from ctx, or a coordinator fault); every
// other failure mode (distribution timeout, missing scanner, scanner
// fault) is absorbed here and reflected only in logs and metrics.
func (d *Distributor) Distribute(ctx context.Context, rootID string, file *types.File, expireAt time.Time) ([]*types.File, error) {
	nodeLog := d.logger.With("root_id", rootID).With("uid", file.UID).With("depth", file.Depth)

	if file.Depth > d.cfg.MaxDepth {
		nodeLog.Info("file exceeds max_depth, skipping", map[string]any{"max_depth": d.cfg.MaxDepth})
		d.metrics.IncFilesSkippedDepth()
		return nil, nil
	}

	distCtx, cancel := context.WithTimeout(ctx, d.cfg.DistributionTimeout)
	defer cancel()

	data, err := d.coord.DrainBytes(distCtx, file.Pointer)
	if err != nil {
		return nil, d.drainFault(ctx, distCtx, nodeLog, "drain_bytes", err)
	}

	d.classifier.Classify(file, data)

	assignments := d.engine.AssignAll(d.cfg.ScannerNames, file)

	record := types.FileRecord{
		Depth:    file.Depth,
		Name:     file.Name,
		Flavors:  file.Flavors.Union(),
		Scanners: assignmentNames(assignments),
		Size:     len(data),
		Source:   file.Source,
		Tree:     buildTree(rootID, file),
	}

	scan := make(map[string]any)
	var children []*types.File
	var faults error

	for _, a := range assignments {
		d.metrics.IncScannersAssigned()

		if distCtx.Err() != nil {
			break
		}

		plugin, err := d.registry.Get(a.Name)
		if err != nil {
			d.metrics.IncScannersMissing()
			faults = multierr.Append(faults, fmt.Errorf("missing scanner %q: %w", a.Name, err))
			continue
		}

		nodeChildren, output, err := plugin.ScanWrapper(distCtx, data, file, a.Options, expireAt)
		if err != nil {
			if ctx.Err() != nil {
				return children, types.NewScanError(types.KindRequestTimeout, "request timed out during scan", ctx.Err())
			}
			d.metrics.IncScannerFaults()
			faults = multierr.Append(faults, fmt.Errorf("scanner %q fault: %w", a.Name, err))
			continue
		}

		for k, v := range output {
			scan[k] = v
		}
		children = append(children, nodeChildren...)
	}

	if faults != nil {
		nodeLog.Warn("non-fatal scanner faults during distribution", map[string]any{"errors": faults.Error()})
	}

	if distCtx.Err() != nil {
		if ctx.Err() != nil {
			return children, types.NewScanError(types.KindRequestTimeout, "request timed out during distribution", ctx.Err())
		}
		nodeLog.Warn("distribution timed out, event may be lost", nil)
		d.metrics.IncDistributionTimeout()
		return children, nil
	}

	event := types.Event{File: record, Scan: scan}
	if err := d.emit(ctx, rootID, event, expireAt); err != nil {
		nodeLog.Error("coordinator fault emitting event", map[string]any{"error": err.Error()})
		d.metrics.IncCoordinatorFaults()
		return children, types.NewScanError(types.KindCoordinatorFault, "emit failed", err)
	}

	d.metrics.IncFilesProcessed()
	return children, nil
}

func (d *Distributor) emit(ctx context.Context, rootID string, event types.Event, expireAt time.Time) error {
	record, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return d.coord.Emit(ctx, rootID, record, expireAt)
}

func (d *Distributor) drainFault(ctx, distCtx context.Context, nodeLog *log.Logger, op string, err error) error {
	if distCtx.Err() != nil {
		if ctx.Err() != nil {
			return types.NewScanError(types.KindRequestTimeout, "request timed out during "+op, ctx.Err())
		}
		nodeLog.Warn("distribution timed out", map[string]any{"op": op})
		d.metrics.IncDistributionTimeout()
		return nil
	}
	nodeLog.Error("coordinator fault", map[string]any{"op": op, "error": err.Error()})
	d.metrics.IncCoordinatorFaults()
	return types.NewScanError(types.KindCoordinatorFault, op, err)
}

func assignmentNames(assignments []types.Assignment) []string {
	names := make([]string, len(assignments))
	for i, a := range assignments {
		names[i] = a.Name
	}
	return names
}

func buildTree(rootID string, file *types.File) types.Tree {
	node := file.UID
	if node == "" {
		node = rootID
	}
	return types.Tree{Node: node, Parent: file.Parent, Root: rootID}
}
