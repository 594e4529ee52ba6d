// Package metrics provides in-process counters for one worker's lifetime.
//
// Collector accumulates counts across every request and file node the
// worker processes. It is a leaf package with no internal dependencies,
// and every increment method is nil-receiver safe so call sites never need
// to guard against a nil collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the collector's counters.
type Snapshot struct {
	RequestsLeased    int64
	RequestsCompleted int64
	RequestsTimedOut  int64
	RequestsSkipped   int64 // popped already expired, never leased

	FilesProcessed      int64
	FilesSkippedDepth   int64
	DistributionTimeout int64

	ScannersAssigned int64
	ScannersMissing  int64
	ScannerFaults    int64

	CoordinatorFaults int64
}

// Collector accumulates counters for one worker process.
// Thread-safe via sync.Mutex; the worker is single-threaded with respect to
// requests, but metrics may be read concurrently by a status endpoint.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{}
}

func (c *Collector) inc(field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s)++
	c.mu.Unlock()
}

// IncRequestsLeased records a popped task that was not already expired and
// is being processed.
func (c *Collector) IncRequestsLeased() {
	c.inc(func(s *Snapshot) *int64 { return &s.RequestsLeased })
}

// IncRequestsCompleted records a request that reached Fin.
func (c *Collector) IncRequestsCompleted() {
	c.inc(func(s *Snapshot) *int64 { return &s.RequestsCompleted })
}

// IncRequestsTimedOut records a request abandoned by RequestTimeout.
func (c *Collector) IncRequestsTimedOut() {
	c.inc(func(s *Snapshot) *int64 { return &s.RequestsTimedOut })
}

// IncRequestsSkipped records a popped task whose expire_at had already passed.
func (c *Collector) IncRequestsSkipped() {
	c.inc(func(s *Snapshot) *int64 { return &s.RequestsSkipped })
}

// IncFilesProcessed records one file node that completed distribution.
func (c *Collector) IncFilesProcessed() {
	c.inc(func(s *Snapshot) *int64 { return &s.FilesProcessed })
}

// IncFilesSkippedDepth records a file node skipped for exceeding max_depth.
func (c *Collector) IncFilesSkippedDepth() {
	c.inc(func(s *Snapshot) *int64 { return &s.FilesSkippedDepth })
}

// IncDistributionTimeout records a single file node's distribution timing out.
func (c *Collector) IncDistributionTimeout() {
	c.inc(func(s *Snapshot) *int64 { return &s.DistributionTimeout })
}

// IncScannersAssigned records one scanner assignment produced by the
// assignment engine (regardless of whether the plugin was found).
func (c *Collector) IncScannersAssigned() {
	c.inc(func(s *Snapshot) *int64 { return &s.ScannersAssigned })
}

// IncScannersMissing records an assigned scanner whose plugin could not be
// resolved in the registry.
func (c *Collector) IncScannersMissing() {
	c.inc(func(s *Snapshot) *int64 { return &s.ScannersMissing })
}

// IncScannerFaults records a scanner plugin invocation that returned an error.
func (c *Collector) IncScannerFaults() {
	c.inc(func(s *Snapshot) *int64 { return &s.ScannerFaults })
}

// IncCoordinatorFaults records a coordinator I/O call that failed at runtime.
func (c *Collector) IncCoordinatorFaults() {
	c.inc(func(s *Snapshot) *int64 { return &s.CoordinatorFaults })
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
