package logger

import (
	"fmt"
	"sync"
	"time"
)

// RunTracker tracks progress of a matching run. Verification workers update
// it concurrently, so all counters live behind a single mutex; readers get
// an immutable RunStats snapshot rather than access to the shared fields.
type RunTracker struct {
	mu sync.RWMutex

	logger      Logger
	operation   string
	total       int64
	processed   int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
}

// RunStats is a read-only snapshot of run progress.
type RunStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Processed  int64         `json:"processed"`
	Percentage float64       `json:"percentage"`
	Elapsed    time.Duration `json:"elapsed"`
	Rate       float64       `json:"rate"`
	ETA        time.Duration `json:"eta,omitempty"`
}

// NewRunTracker creates a tracker for an operation expecting total items.
// A zero log interval disables interval progress logging; counters and
// snapshots still work.
func NewRunTracker(operation string, total int64, logInterval time.Duration, log Logger) *RunTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	now := time.Now()
	tracker := &RunTracker{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   now,
		lastLogTime: now,
		logInterval: logInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Info("Starting operation")

	return tracker
}

// Add increases the processed counter by delta, logging at intervals.
// Safe for concurrent use from verification workers.
func (rt *RunTracker) Add(delta int64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.processed += delta

	now := time.Now()
	if rt.logInterval > 0 && now.Sub(rt.lastLogTime) >= rt.logInterval {
		rt.logger.WithFields(rt.progressFields(now)).Info("Progress update")
		rt.lastLogTime = now
	}
}

// Complete logs final throughput statistics.
func (rt *RunTracker) Complete() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	duration := time.Since(rt.startTime)
	rate := 0.0
	if duration.Seconds() > 0 {
		rate = float64(rt.processed) / duration.Seconds()
	}

	rt.logger.WithFields(Fields{
		"operation": rt.operation,
		"processed": rt.processed,
		"total":     rt.total,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", rate),
	}).Info("Operation completed")
}

// Snapshot returns the current progress statistics.
func (rt *RunTracker) Snapshot() RunStats {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	elapsed := time.Since(rt.startTime)
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(rt.processed) / elapsed.Seconds()
	}

	stats := RunStats{
		Operation: rt.operation,
		Total:     rt.total,
		Processed: rt.processed,
		Elapsed:   elapsed,
		Rate:      rate,
	}

	if rt.total > 0 {
		stats.Percentage = float64(rt.processed) / float64(rt.total) * 100
		if rt.processed > 0 && rate > 0 {
			remaining := rt.total - rt.processed
			stats.ETA = time.Duration(float64(remaining)/rate) * time.Second
		}
	}

	return stats
}

func (rt *RunTracker) progressFields(now time.Time) Fields {
	elapsed := now.Sub(rt.startTime)
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(rt.processed) / elapsed.Seconds()
	}

	fields := Fields{
		"operation": rt.operation,
		"processed": rt.processed,
		"rate":      fmt.Sprintf("%.2f/sec", rate),
	}

	if rt.total > 0 {
		fields["total"] = rt.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(rt.processed)/float64(rt.total)*100)
		if rt.processed > 0 && rate > 0 {
			remaining := rt.total - rt.processed
			fields["eta"] = (time.Duration(float64(remaining)/rate) * time.Second).String()
		}
	}

	return fields
}

// String returns a human-readable representation of the progress
func (rs RunStats) String() string {
	if rs.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%) at %.2f/sec, ETA: %v",
			rs.Operation, rs.Processed, rs.Total, rs.Percentage, rs.Rate, rs.ETA)
	}
	return fmt.Sprintf("%s: %d processed at %.2f/sec, elapsed: %v",
		rs.Operation, rs.Processed, rs.Rate, rs.Elapsed)
}
