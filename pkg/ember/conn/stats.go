package conn

import "sync/atomic"

// Stats holds the server-wide counters updated at connection state
// transitions: plain atomic fields rather than a mutex-guarded struct,
// read lock-free from any goroutine.
type Stats struct {
	ActiveHandlers    atomic.Int64
	KeepAliveHandlers atomic.Int64

	TotalConnections  atomic.Int64
	TotalRequests     atomic.Int64
	ConnectionErrors  atomic.Int64
}

// EnterProcessing moves a connection from idle/new into Processing: an
// in-flight request is now being handled.
func (s *Stats) EnterProcessing() {
	s.ActiveHandlers.Add(1)
	s.TotalRequests.Add(1)
}

// LeaveProcessing decrements ActiveHandlers once a response for the
// current request has been fully written and its cleanup callback run.
func (s *Stats) LeaveProcessing() {
	s.ActiveHandlers.Add(-1)
}

// EnterKeepAliveIdle moves a connection into Keep-Alive-Idle.
func (s *Stats) EnterKeepAliveIdle() {
	s.KeepAliveHandlers.Add(1)
}

// LeaveKeepAliveIdle moves a connection out of Keep-Alive-Idle, either
// because new bytes arrived (back to Reading-Request) or because it timed
// out / was closed.
func (s *Stats) LeaveKeepAliveIdle() {
	s.KeepAliveHandlers.Add(-1)
}

// Snapshot is a point-in-time, non-atomic copy for reporting.
type Snapshot struct {
	ActiveHandlers    int64
	KeepAliveHandlers int64
	TotalConnections  int64
	TotalRequests     int64
	ConnectionErrors  int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ActiveHandlers:    s.ActiveHandlers.Load(),
		KeepAliveHandlers: s.KeepAliveHandlers.Load(),
		TotalConnections:  s.TotalConnections.Load(),
		TotalRequests:     s.TotalRequests.Load(),
		ConnectionErrors:  s.ConnectionErrors.Load(),
	}
}

// Quiescent reports whether both handler counters are zero, the condition
// gentle shutdown waits for.
func (s Snapshot) Quiescent() bool {
	return s.ActiveHandlers == 0 && s.KeepAliveHandlers == 0
}
