package server

import (
	"fmt"
	"io"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics holds the counters of one server instance.
// A separate set per server keeps servers started in the same process apart.
type serverMetrics struct {
	set         *metrics.Set
	connections *metrics.Counter
	accepted    *metrics.Counter
	malformed   *metrics.Counter
}

func newServerMetrics() *serverMetrics {
	set := metrics.NewSet()
	return &serverMetrics{
		set:         set,
		connections: set.NewCounter("aci_connections_active"),
		accepted:    set.NewCounter("aci_connections_total"),
		malformed:   set.NewCounter("aci_malformed_frames_total"),
	}
}

// connOpened and connClosed track the number of open connections
func (m *serverMetrics) connOpened() {
	m.accepted.Inc()
	m.connections.Inc()
}

func (m *serverMetrics) connClosed() {
	m.connections.Dec()
}

// observe records one dispatched request and, if any, the error code of its reply
func (m *serverMetrics) observe(cmd common.MessageType, code common.ErrorCode, start time.Time) {
	m.set.GetOrCreateCounter(fmt.Sprintf("aci_requests_total{cmd=%q}", cmd)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf("aci_dispatch_duration_seconds{cmd=%q}", cmd)).UpdateDuration(start)
	if code != "" {
		m.set.GetOrCreateCounter(fmt.Sprintf("aci_errors_total{code=%q}", code)).Inc()
	}
}

// write exposes the server metrics plus the process metrics in Prometheus text format
func (m *serverMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
