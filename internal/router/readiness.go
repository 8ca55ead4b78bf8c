package router

import (
	"bytes"
	"strings"
	"sync"
)

// Output markers the router is known to emit. Matching is case-insensitive
// substring search; the router offers no structured alternative.
const (
	markerProxyReady   = "socks proxy started"
	markerNetworkReady = "network status: ok"
	markerPortInUse    = "address already in use"
	markerBindFailed   = "failed to bind"
	markerFatal        = "fatal"
	markerCritical     = "critical"
)

// ReadinessDetector consumes the raw output stream of a router start attempt
// and raises at most one terminal signal: ready (both the proxy and network
// markers observed) or fatal (a bind conflict or FATAL/CRITICAL line).
//
// Output arrives in arbitrary chunks; the detector reassembles lines and
// buffers partial ones until completed. It implements io.Writer so the
// process pipes can be copied straight into it.
type ReadinessDetector struct {
	mu           sync.Mutex
	buf          bytes.Buffer
	proxyReady   bool
	networkReady bool
	signaled     bool
	armed        bool

	onLine  func(line string)
	onReady func()
	onFatal func(detail string)
}

// NewReadinessDetector creates an armed detector for a single start attempt.
// onLine is invoked for every complete line regardless of armed state (for
// logging); onReady and onFatal fire at most once, and only while armed.
func NewReadinessDetector(onLine func(string), onReady func(), onFatal func(string)) *ReadinessDetector {
	return &ReadinessDetector{
		armed:   true,
		onLine:  onLine,
		onReady: onReady,
		onFatal: onFatal,
	}
}

// Write consumes an output chunk, splitting it on line boundaries. Partial
// trailing lines stay buffered until the next chunk completes them.
func (d *ReadinessDetector) Write(p []byte) (int, error) {
	d.mu.Lock()
	d.buf.Write(p)

	var lines []string
	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(data[:idx]), "\r")
		d.buf.Next(idx + 1)
		if line != "" {
			lines = append(lines, line)
		}
	}
	d.mu.Unlock()

	for _, line := range lines {
		d.processLine(line)
	}
	return len(p), nil
}

// Disarm suppresses all further pattern matching. Lines still reach onLine
// so stray output during shutdown stays visible in the logs without causing
// spurious transitions.
func (d *ReadinessDetector) Disarm() {
	d.mu.Lock()
	d.armed = false
	d.mu.Unlock()
}

// Flags returns the current readiness flags
func (d *ReadinessDetector) Flags() (proxyReady, networkReady bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.proxyReady, d.networkReady
}

func (d *ReadinessDetector) processLine(line string) {
	if d.onLine != nil {
		d.onLine(line)
	}

	d.mu.Lock()
	if !d.armed || d.signaled {
		d.mu.Unlock()
		return
	}

	lower := strings.ToLower(line)

	// Fatal startup conditions abort the attempt regardless of flag state
	if strings.Contains(lower, markerPortInUse) || strings.Contains(lower, markerBindFailed) {
		d.signaled = true
		d.mu.Unlock()
		if d.onFatal != nil {
			d.onFatal("router port already in use: " + line)
		}
		return
	}
	if strings.Contains(lower, markerFatal) || strings.Contains(lower, markerCritical) {
		d.signaled = true
		d.mu.Unlock()
		if d.onFatal != nil {
			d.onFatal(line)
		}
		return
	}

	if strings.Contains(lower, markerProxyReady) {
		d.proxyReady = true
	}
	if strings.Contains(lower, markerNetworkReady) {
		d.networkReady = true
	}

	if d.proxyReady && d.networkReady {
		d.signaled = true
		d.mu.Unlock()
		if d.onReady != nil {
			d.onReady()
		}
		return
	}
	d.mu.Unlock()
}
