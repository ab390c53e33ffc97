package pathretention

import (
	"sync/atomic"
	"time"

	"github.com/hydroworks/gridsync/pkg/glog"
)

// Metrics defines the interface for collecting and reporting retention statistics.
type Metrics interface {
	AddFilesDeleted(n int64)
	AddFilesKept(n int64)
	AddFilesFailed(n int64)
	AddDirsPruned(n int64)
	AddEntriesProcessed(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// RetentionMetrics holds the atomic counters for tracking a retention pass.
// It is the concrete implementation of the Metrics interface.
type RetentionMetrics struct {
	FilesDeleted     atomic.Int64
	FilesKept        atomic.Int64
	FilesFailed      atomic.Int64
	DirsPruned       atomic.Int64
	EntriesProcessed atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *RetentionMetrics) AddFilesDeleted(n int64)     { m.FilesDeleted.Add(n) }
func (m *RetentionMetrics) AddFilesKept(n int64)        { m.FilesKept.Add(n) }
func (m *RetentionMetrics) AddFilesFailed(n int64)      { m.FilesFailed.Add(n) }
func (m *RetentionMetrics) AddDirsPruned(n int64)       { m.DirsPruned.Add(n) }
func (m *RetentionMetrics) AddEntriesProcessed(n int64) { m.EntriesProcessed.Add(n) }

func (m *RetentionMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *RetentionMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
	}
}

// LogSummary prints a summary of the retention pass with a custom message.
func (m *RetentionMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	glog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"files_deleted", m.FilesDeleted.Load(),
		"files_kept", m.FilesKept.Load(),
		"files_failed", m.FilesFailed.Load(),
		"dirs_pruned", m.DirsPruned.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesDeleted(n int64)                          {}
func (m *NoopMetrics) AddFilesKept(n int64)                             {}
func (m *NoopMetrics) AddFilesFailed(n int64)                           {}
func (m *NoopMetrics) AddDirsPruned(n int64)                            {}
func (m *NoopMetrics) AddEntriesProcessed(n int64)                      {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RetentionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
