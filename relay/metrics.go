package relay

import "sync/atomic"

type MetricsSnapshot struct {
	Sent        int64 `json:"sent"`
	Dropped     int64 `json:"dropped"`
	Received    int64 `json:"received"`
	Subscribers int64 `json:"subscribers"`
	Evicted     int64 `json:"evicted"`
}

type Metrics struct {
	sent        atomic.Int64
	dropped     atomic.Int64
	received    atomic.Int64
	subscribers atomic.Int64
	evicted     atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSent(delta int) {
	m.sent.Add(int64(delta))
}

func (m *Metrics) RecordDropped(delta int) {
	m.dropped.Add(int64(delta))
}

func (m *Metrics) RecordReceived(delta int) {
	m.received.Add(int64(delta))
}

func (m *Metrics) RecordSubscriber(delta int) {
	m.subscribers.Add(int64(delta))
}

func (m *Metrics) RecordEvicted(delta int) {
	m.evicted.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:        m.sent.Load(),
		Dropped:     m.dropped.Load(),
		Received:    m.received.Load(),
		Subscribers: m.subscribers.Load(),
		Evicted:     m.evicted.Load(),
	}
}
