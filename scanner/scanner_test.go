package scanner

import (
	"archive/zip"
	"bytes"
	stdgzip "compress/gzip"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/types"
	goredis "github.com/redis/go-redis/v9"
)

func newTestCoordinator(t *testing.T) *coordinator.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return coordinator.NewFromRedis(rdb)
}

func parentFile() *types.File {
	return &types.File{UID: "parent-1", Depth: 0, Name: "archive", Flavors: make(types.FlavorSet)}
}

func zeroExpire() time.Time {
	return time.Now().Add(time.Minute)
}

func TestScanZip_ExtractsMembers(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanZip(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, summary, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), nil, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 1 || children[0].Name != "a.txt" {
		t.Fatalf("children = %+v", children)
	}
	if children[0].Depth != 1 || children[0].Parent != "parent-1" || children[0].Source != "ScanZip" {
		t.Errorf("child descriptor = %+v", children[0])
	}
	zipSummary, ok := summary["ScanZip"].(map[string]any)
	if !ok || zipSummary["total_extracted"] != 1 {
		t.Errorf("summary = %v", summary)
	}
}

func TestScanZip_DedupesByteIdenticalMembers(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte("same content")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanZip(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, _, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), nil, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v, want 1 (duplicate content deduped)", children)
	}
}

func TestScanGzip_DecompressesSingleMember(t *testing.T) {
	var buf bytes.Buffer
	gw := stdgzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanGzip(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, summary, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), nil, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v", children)
	}
	gzipSummary, ok := summary["ScanGzip"].(map[string]any)
	if !ok || gzipSummary["total_extracted"] != 1 {
		t.Errorf("summary = %v", summary)
	}
}

func TestScanLz4_DecompressesFrame(t *testing.T) {
	var buf bytes.Buffer
	lw := lz4.NewWriter(&buf)
	if _, err := lw.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := lw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanLz4(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, _, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), nil, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v", children)
	}
}

func TestScanBrotli_DecompressesStream(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanBrotli(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, _, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), nil, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v", children)
	}
}

func TestRegistry_CachesInstances(t *testing.T) {
	coord := newTestCoordinator(t)
	r := NewRegistry(&config.Config{}, coord)

	a, err := r.Get("ScanZip")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Get("ScanZip")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the same cached instance on repeated Get")
	}
}

func TestRegistry_UnknownScannerErrors(t *testing.T) {
	coord := newTestCoordinator(t)
	r := NewRegistry(&config.Config{}, coord)

	if _, err := r.Get("ScanDoesNotExist"); err == nil {
		t.Fatal("expected error for unregistered scanner name")
	}
}

func TestScanZip_RespectsLimitOption(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	coord := newTestCoordinator(t)
	s, err := newScanZip(nil, coord)
	if err != nil {
		t.Fatal(err)
	}

	children, _, err := s.ScanWrapper(t.Context(), buf.Bytes(), parentFile(), map[string]any{"limit": 2}, zeroExpire())
	if err != nil {
		t.Fatalf("ScanWrapper: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %+v, want 2 (limit enforced)", children)
	}
}

func TestScanZip_ValidateOptions_RejectsMalformedLimit(t *testing.T) {
	coord := newTestCoordinator(t)
	s, err := newScanZip(nil, coord)
	if err != nil {
		t.Fatal(err)
	}
	validator := s.(interface{ ValidateOptions(map[string]any) error })

	if err := validator.ValidateOptions(map[string]any{"limit": "not-a-number"}); err == nil {
		t.Fatal("expected an error for a non-numeric limit")
	}
	if err := validator.ValidateOptions(map[string]any{"limit": 3}); err != nil {
		t.Errorf("valid limit rejected: %v", err)
	}
}

func TestRegistry_ValidateConfigured_CatchesMalformedOptionAtBootstrap(t *testing.T) {
	coord := newTestCoordinator(t)
	r := NewRegistry(&config.Config{}, coord)

	mappings := map[string]types.ScannerMapping{
		"ScanZip": {Rules: []types.Rule{{Options: map[string]any{"limit": "nope"}}}},
	}
	if err := r.ValidateConfigured(mappings); err == nil {
		t.Fatal("expected a bootstrap error for a malformed limit option")
	}
}

func TestRegistry_ValidateConfigured_AcceptsWellFormedOptions(t *testing.T) {
	coord := newTestCoordinator(t)
	r := NewRegistry(&config.Config{}, coord)

	mappings := map[string]types.ScannerMapping{
		"ScanZip": {Rules: []types.Rule{{Options: map[string]any{"limit": 5}}}},
	}
	if err := r.ValidateConfigured(mappings); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
