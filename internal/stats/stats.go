// Package stats keeps the server's counters behind a single lock so that every
// snapshot is internally consistent.
package stats

import (
	"fmt"
	"sync"
	"time"
)

// Counter names one of the statistics counters.
type Counter int

const (
	ConnectionsAccepted Counter = iota
	ConnectionsRejected
	ConnectionsClosed
	BytesReceived
	BytesSent
	MessagesReceived
	MessagesSent
	SendErrors
	ReceiveErrors
	RateLimited
	numCounters
)

var counterNames = [...]string{
	ConnectionsAccepted: "connections_accepted",
	ConnectionsRejected: "connections_rejected",
	ConnectionsClosed:   "connections_closed",
	BytesReceived:       "bytes_received",
	BytesSent:           "bytes_sent",
	MessagesReceived:    "messages_received",
	MessagesSent:        "messages_sent",
	SendErrors:          "send_errors",
	ReceiveErrors:       "receive_errors",
	RateLimited:         "rate_limited",
}

func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return fmt.Sprintf("counter(%d)", int(c))
	}
	return counterNames[c]
}

// Counters lists every counter in a stable order.
func Counters() []Counter {
	out := make([]Counter, 0, numCounters)
	for c := Counter(0); c < numCounters; c++ {
		out = append(out, c)
	}
	return out
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	ConnectionsAccepted uint64    `json:"connections_accepted"`
	ConnectionsRejected uint64    `json:"connections_rejected"`
	ConnectionsClosed   uint64    `json:"connections_closed"`
	BytesReceived       uint64    `json:"bytes_received"`
	BytesSent           uint64    `json:"bytes_sent"`
	MessagesReceived    uint64    `json:"messages_received"`
	MessagesSent        uint64    `json:"messages_sent"`
	SendErrors          uint64    `json:"send_errors"`
	ReceiveErrors       uint64    `json:"receive_errors"`
	RateLimited         uint64    `json:"rate_limited"`
	TakenAt             time.Time `json:"taken_at"`
}

// Get returns the value of one counter.
func (s Snapshot) Get(c Counter) uint64 {
	switch c {
	case ConnectionsAccepted:
		return s.ConnectionsAccepted
	case ConnectionsRejected:
		return s.ConnectionsRejected
	case ConnectionsClosed:
		return s.ConnectionsClosed
	case BytesReceived:
		return s.BytesReceived
	case BytesSent:
		return s.BytesSent
	case MessagesReceived:
		return s.MessagesReceived
	case MessagesSent:
		return s.MessagesSent
	case SendErrors:
		return s.SendErrors
	case ReceiveErrors:
		return s.ReceiveErrors
	case RateLimited:
		return s.RateLimited
	}
	return 0
}

// Active is the number of accepted connections that have not closed yet.
func (s Snapshot) Active() uint64 {
	if s.ConnectionsClosed > s.ConnectionsAccepted {
		return 0
	}
	return s.ConnectionsAccepted - s.ConnectionsClosed
}

// RejectionRatio is rejected / accepted, or 0 before anything was accepted.
func (s Snapshot) RejectionRatio() float64 {
	if s.ConnectionsAccepted == 0 {
		return 0
	}
	return float64(s.ConnectionsRejected) / float64(s.ConnectionsAccepted)
}

// Collector is a set of monotonically non-decreasing counters.
type Collector struct {
	mu       sync.Mutex
	counters [numCounters]uint64
	now      func() time.Time
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// Increment adds amount to counter c. Unknown counters are ignored.
func (c *Collector) Increment(counter Counter, amount uint64) {
	if counter < 0 || counter >= numCounters || amount == 0 {
		return
	}
	c.mu.Lock()
	c.counters[counter] += amount
	c.mu.Unlock()
}

// Snapshot copies all counters under one lock acquisition.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	counters := c.counters
	c.mu.Unlock()

	return Snapshot{
		ConnectionsAccepted: counters[ConnectionsAccepted],
		ConnectionsRejected: counters[ConnectionsRejected],
		ConnectionsClosed:   counters[ConnectionsClosed],
		BytesReceived:       counters[BytesReceived],
		BytesSent:           counters[BytesSent],
		MessagesReceived:    counters[MessagesReceived],
		MessagesSent:        counters[MessagesSent],
		SendErrors:          counters[SendErrors],
		ReceiveErrors:       counters[ReceiveErrors],
		RateLimited:         counters[RateLimited],
		TakenAt:             c.now(),
	}
}
