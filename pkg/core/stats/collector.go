// Package stats accumulates engine counters and produces snapshots.
package stats

import (
	"time"
)

// Snapshot is a point-in-time copy of the engine statistics.
type Snapshot struct {
	State       string `json:"state"`
	IsConnected bool   `json:"isConnected"`
	Healthy     bool   `json:"healthy"`

	MessagesSent     uint64 `json:"messagesSent"`
	MessagesReceived uint64 `json:"messagesReceived"`
	BytesSent        uint64 `json:"bytesSent"`
	BytesReceived    uint64 `json:"bytesReceived"`
	BatchesSent      uint64 `json:"batchesSent"`

	ErrorCount           uint64 `json:"errorCount"`
	RetryCount           uint64 `json:"retryCount"`
	FailedCount          uint64 `json:"failedCount"`
	ReconnectCount       uint64 `json:"reconnectCount"`
	CompressedFrames     uint64 `json:"compressedFrames"`
	CompressionFallbacks uint64 `json:"compressionFallbacks"`
	DuplicatesDropped    uint64 `json:"duplicatesDropped"`

	QueueDepth  int            `json:"queueDepth"`
	QueueByLane map[string]int `json:"queueByLane"`
	PendingAcks int            `json:"pendingAcks"`

	AverageBatchSize float64       `json:"averageBatchSize"`
	AverageLatency   time.Duration `json:"averageLatency"`
	ConnectionUptime time.Duration `json:"connectionUptime"`
	LastPongAt       time.Time     `json:"lastPongAt"`
}

// Gauges are values owned by other components, filled in by the engine.
type Gauges struct {
	State          string
	Connected      bool
	Healthy        bool
	QueueDepth     int
	QueueByLane    map[string]int
	PendingAcks    int
	AverageLatency time.Duration
	LastPongAt     time.Time
}

// Collector is owned by the engine loop and is not safe for concurrent use.
type Collector struct {
	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64
	batchesSent      uint64
	batchedMessages  uint64

	errors     uint64
	retries    uint64
	failures   uint64
	reconnects uint64
	compressed uint64
	fallbacks  uint64
	duplicates uint64

	connectedAt time.Time
	uptime      time.Duration
}

func New() *Collector { return &Collector{} }

// BatchSent records one transmitted frame holding n messages.
func (c *Collector) BatchSent(n, bytes int) {
	c.batchesSent++
	c.batchedMessages += uint64(n)
	c.messagesSent += uint64(n)
	c.bytesSent += uint64(bytes)
}

// Received records one inbound frame holding n messages.
func (c *Collector) Received(n, bytes int) {
	c.messagesReceived += uint64(n)
	c.bytesReceived += uint64(bytes)
}

func (c *Collector) Error()               { c.errors++ }
func (c *Collector) Retry()               { c.retries++ }
func (c *Collector) Failure()             { c.failures++ }
func (c *Collector) Reconnect()           { c.reconnects++ }
func (c *Collector) Compressed()          { c.compressed++ }
func (c *Collector) CompressionFallback() { c.fallbacks++ }
func (c *Collector) Duplicate()           { c.duplicates++ }

// Connected starts the uptime clock.
func (c *Collector) Connected(now time.Time) {
	if c.connectedAt.IsZero() {
		c.connectedAt = now
	}
}

// Disconnected stops the uptime clock and banks the elapsed time.
func (c *Collector) Disconnected(now time.Time) {
	if c.connectedAt.IsZero() {
		return
	}
	c.uptime += now.Sub(c.connectedAt)
	c.connectedAt = time.Time{}
}

// Uptime is the accumulated connected time as of now.
func (c *Collector) Uptime(now time.Time) time.Duration {
	if c.connectedAt.IsZero() {
		return c.uptime
	}
	return c.uptime + now.Sub(c.connectedAt)
}

// Reset zeroes every counter and the uptime clock.
func (c *Collector) Reset() { *c = Collector{} }

// Snapshot copies the counters and merges g.
func (c *Collector) Snapshot(now time.Time, g Gauges) Snapshot {
	s := Snapshot{
		State:                g.State,
		IsConnected:          g.Connected,
		Healthy:              g.Healthy,
		MessagesSent:         c.messagesSent,
		MessagesReceived:     c.messagesReceived,
		BytesSent:            c.bytesSent,
		BytesReceived:        c.bytesReceived,
		BatchesSent:          c.batchesSent,
		ErrorCount:           c.errors,
		RetryCount:           c.retries,
		FailedCount:          c.failures,
		ReconnectCount:       c.reconnects,
		CompressedFrames:     c.compressed,
		CompressionFallbacks: c.fallbacks,
		DuplicatesDropped:    c.duplicates,
		QueueDepth:           g.QueueDepth,
		PendingAcks:          g.PendingAcks,
		AverageLatency:       g.AverageLatency,
		ConnectionUptime:     c.Uptime(now),
		LastPongAt:           g.LastPongAt,
	}
	if c.batchesSent > 0 {
		s.AverageBatchSize = float64(c.batchedMessages) / float64(c.batchesSent)
	}
	if g.QueueByLane != nil {
		s.QueueByLane = make(map[string]int, len(g.QueueByLane))
		for k, v := range g.QueueByLane {
			s.QueueByLane[k] = v
		}
	}
	return s
}
