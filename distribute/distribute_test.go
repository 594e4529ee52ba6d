package distribute

import (
	"bytes"
	stdgzip "compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/triage/assign"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/classify"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/log"
	"github.com/pithecene-io/triage/metrics"
	"github.com/pithecene-io/triage/scanner"
	"github.com/pithecene-io/triage/types"
)

func newHarness(t *testing.T, scanners map[string]types.ScannerMapping, scannerNames []string) (*Distributor, *coordinator.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	coord := coordinator.NewFromRedis(rdb)

	engine, err := assign.NewEngine(scanners)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	classifier := classify.New(classify.NewMimeClassifier(false), nil, nil)
	registry := scanner.NewRegistry(&config.Config{}, coord)
	collector := metrics.New()
	logger := log.New(log.Config{Level: "error"})

	d := New(coord, classifier, engine, registry, collector, logger, Config{
		MaxDepth:            5,
		DistributionTimeout: 10 * time.Second,
		ScannerNames:        scannerNames,
	})
	return d, coord, mr
}

func readEvents(t *testing.T, mr *miniredis.Miniredis, rootID string) []string {
	t.Helper()
	entries, err := mr.List("event:" + rootID)
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestDistribute_NoScannersEmitsSingleEvent(t *testing.T) {
	d, coord, mr := newHarness(t, map[string]types.ScannerMapping{}, nil)

	if err := coord.PushBytes(t.Context(), "r1", []byte("hello world\n")); err != nil {
		t.Fatal(err)
	}

	file := types.NewRootFile("r1")

	children, err := d.Distribute(t.Context(), "r1", file, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("children = %+v, want none", children)
	}

	entries := readEvents(t, mr, "r1")
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want 1", entries)
	}

	var evt types.Event
	if err := json.Unmarshal([]byte(entries[0]), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.File.Size != 12 {
		t.Errorf("size = %d, want 12", evt.File.Size)
	}
	if len(evt.File.Scanners) != 0 {
		t.Errorf("scanners = %v, want none", evt.File.Scanners)
	}
	if evt.File.Tree.Root != "r1" || evt.File.Tree.Node != "r1" {
		t.Errorf("tree = %+v", evt.File.Tree)
	}
}

func TestDistribute_AssignedScannerExtractsChild(t *testing.T) {
	scanners := map[string]types.ScannerMapping{
		"ScanGzip": {Rules: []types.Rule{{Positive: &types.Match{Flavors: []string{"*"}}, Priority: 5}}},
	}
	d, coord, _ := newHarness(t, scanners, []string{"ScanGzip"})

	var buf bytes.Buffer
	gw := stdgzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := coord.PushBytes(t.Context(), "r1", buf.Bytes()); err != nil {
		t.Fatal(err)
	}

	file := types.NewRootFile("r1")

	children, err := d.Distribute(t.Context(), "r1", file, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v, want 1", children)
	}
	if children[0].Depth != 1 || children[0].Parent != "r1" {
		t.Errorf("child = %+v", children[0])
	}
}

func TestDistribute_DepthExceedingMaxDepthIsSkipped(t *testing.T) {
	d, _, mr := newHarness(t, map[string]types.ScannerMapping{}, nil)

	file := types.NewRootFile("r1")
	file.Depth = 99

	children, err := d.Distribute(t.Context(), "r1", file, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if children != nil {
		t.Errorf("children = %+v, want nil", children)
	}
	if entries := readEvents(t, mr, "r1"); len(entries) != 0 {
		t.Errorf("entries = %v, want none", entries)
	}
}

func TestDistribute_DrainFaultDuringRequestTimeoutIsRequestTimeout(t *testing.T) {
	d, _, _ := newHarness(t, map[string]types.ScannerMapping{}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	file := types.NewRootFile("r1")

	_, err := d.Distribute(ctx, "r1", file, time.Now().Add(time.Minute))
	if err == nil {
		t.Fatal("expected an error when the request context is already done")
	}
	var scanErr *types.ScanError
	if !errors.As(err, &scanErr) || scanErr.Kind != types.KindRequestTimeout {
		t.Fatalf("err = %v, want KindRequestTimeout", err)
	}
}

func TestDistribute_MissingScannerIsAbsorbed(t *testing.T) {
	scanners := map[string]types.ScannerMapping{
		"ScanNotRegistered": {Rules: []types.Rule{{Positive: &types.Match{Flavors: []string{"*"}}}}},
	}
	d, coord, mr := newHarness(t, scanners, []string{"ScanNotRegistered"})

	if err := coord.PushBytes(t.Context(), "r1", []byte("data")); err != nil {
		t.Fatal(err)
	}

	file := types.NewRootFile("r1")

	_, err := d.Distribute(t.Context(), "r1", file, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	entries := readEvents(t, mr, "r1")
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want 1 (request continues despite missing scanner)", entries)
	}
}
