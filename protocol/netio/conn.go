// Package netio implements the byte-level I/O adapter (spec §4.A): a
// cancellable, partial-read/write wrapper around a net.Conn, plus STARTTLS/
// STLS upgrade and Prometheus instrumentation.
package netio

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors a Conn reports through, grounded on
// infodancer-pop3d/internal/metrics. Nil fields are skipped.
type Metrics struct {
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
	Reconnects   prometheus.Counter
}

// Conn wraps a net.Conn (or TLS conn) with a cooperative, level-triggered
// cancellation model: the caller supplies a context whose cancellation
// closes the underlying connection, which is the Go-native analogue of
// polling a cancel file descriptor alongside the socket (spec §5).
type Conn struct {
	mu      sync.Mutex
	rw      net.Conn
	metrics *Metrics
	cancel  context.CancelFunc
}

// New wraps an established connection. If ctx is non-nil, cancelling it
// closes the connection and causes any in-flight Read/Write to return an
// error (the Go analogue of spec §5's cancel-fd EINTR behavior).
func New(ctx context.Context, rw net.Conn, m *Metrics) *Conn {
	c := &Conn{rw: rw, metrics: m}
	if ctx != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go func() {
			<-watchCtx.Done()
			if watchCtx.Err() == context.Canceled && ctx.Err() == nil {
				return // cancelled via our own Close, not caller cancellation
			}
			rw.Close()
		}()
	}
	return c
}

// Read fills buf completely from the connection, or returns a short count
// with an error on EOF/cancellation (partial-read loop per spec §4.A).
func (c *Conn) Read(buf []byte) (int, error) {
	n, err := io.ReadFull(c.rw, buf)
	if c.metrics != nil && c.metrics.BytesRead != nil && n > 0 {
		c.metrics.BytesRead.Add(float64(n))
	}
	return n, err
}

// ReadSome reads at least one byte and at most len(buf), without requiring
// the buffer to fill (used by the tokenisers' refill loops).
func (c *Conn) ReadSome(buf []byte) (int, error) {
	n, err := c.rw.Read(buf)
	if c.metrics != nil && c.metrics.BytesRead != nil && n > 0 {
		c.metrics.BytesRead.Add(float64(n))
	}
	return n, err
}

// Write writes buf completely, looping over partial writes.
func (c *Conn) Write(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.rw.Write(buf[total:])
		total += n
		if c.metrics != nil && c.metrics.BytesWritten != nil && n > 0 {
			c.metrics.BytesWritten.Add(float64(n))
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return c.rw.Close()
}

// UpgradeTLS replaces the underlying connection with a TLS client connection
// wrapping it, performing the handshake synchronously (STARTTLS/STLS hook,
// spec §6).
func (c *Conn) UpgradeTLS(cfg *tls.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tlsConn := tls.Client(c.rw, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return fmt.Errorf("netio: TLS upgrade: %w", err)
	}
	c.rw = tlsConn
	return nil
}

// Underlying returns the raw net.Conn currently in use (post-TLS-upgrade if
// applicable).
func (c *Conn) Underlying() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rw
}

// NewMetrics registers the standard bytes-in/bytes-out/reconnect counters
// with reg under the given constant labels, grounded on
// infodancer-pop3d/internal/metrics' Prometheus usage.
func NewMetrics(reg prometheus.Registerer, subsystem string, constLabels prometheus.Labels) *Metrics {
	m := &Metrics{
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mails",
			Subsystem:   subsystem,
			Name:        "bytes_read_total",
			Help:        "Total bytes read from the server connection.",
			ConstLabels: constLabels,
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mails",
			Subsystem:   subsystem,
			Name:        "bytes_written_total",
			Help:        "Total bytes written to the server connection.",
			ConstLabels: constLabels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mails",
			Subsystem:   subsystem,
			Name:        "reconnects_total",
			Help:        "Total reconnect attempts.",
			ConstLabels: constLabels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BytesRead, m.BytesWritten, m.Reconnects)
	}
	return m
}
