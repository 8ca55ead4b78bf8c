package router

import (
	"strings"
	"sync"
	"testing"
)

// detectorRecorder collects detector callbacks for assertions
type detectorRecorder struct {
	mu     sync.Mutex
	lines  []string
	ready  int
	fatals []string
}

func (r *detectorRecorder) onLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *detectorRecorder) onReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready++
}

func (r *detectorRecorder) onFatal(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, detail)
}

func newRecordedDetector() (*ReadinessDetector, *detectorRecorder) {
	rec := &detectorRecorder{}
	return NewReadinessDetector(rec.onLine, rec.onReady, rec.onFatal), rec
}

func TestDetectorReadyRequiresBothMarkers(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("21:05:01 info: SOCKS proxy started\n"))
	if rec.ready != 0 {
		t.Fatal("expected no ready signal after proxy marker alone")
	}
	proxy, network := d.Flags()
	if !proxy || network {
		t.Fatalf("expected flags (true, false), got (%v, %v)", proxy, network)
	}

	d.Write([]byte("21:05:09 info: Network status: OK\n"))
	if rec.ready != 1 {
		t.Fatalf("expected one ready signal, got %d", rec.ready)
	}
}

func TestDetectorMarkersInEitherOrder(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("Network status: OK\nSOCKS proxy started\n"))
	if rec.ready != 1 {
		t.Fatalf("expected one ready signal, got %d", rec.ready)
	}
}

func TestDetectorReadySignalsOnce(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("SOCKS proxy started\nNetwork status: OK\n"))
	d.Write([]byte("SOCKS proxy started\nNetwork status: OK\n"))
	if rec.ready != 1 {
		t.Fatalf("expected exactly one ready signal, got %d", rec.ready)
	}
}

func TestDetectorMatchingIsCaseInsensitive(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("socks PROXY Started\nNETWORK STATUS: ok\n"))
	if rec.ready != 1 {
		t.Fatalf("expected ready signal with mixed-case markers, got %d", rec.ready)
	}
}

func TestDetectorReassemblesChunkedLines(t *testing.T) {
	d, rec := newRecordedDetector()

	// One marker line split across three writes
	d.Write([]byte("SOCKS pro"))
	d.Write([]byte("xy star"))
	d.Write([]byte("ted\nNetwork status: OK\n"))

	if rec.ready != 1 {
		t.Fatalf("expected ready after chunked marker, got %d signals", rec.ready)
	}
	if len(rec.lines) != 2 {
		t.Fatalf("expected 2 reassembled lines, got %d: %v", len(rec.lines), rec.lines)
	}
}

func TestDetectorStripsCarriageReturns(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("SOCKS proxy started\r\nNetwork status: OK\r\n"))
	if rec.ready != 1 {
		t.Fatalf("expected ready with CRLF output, got %d signals", rec.ready)
	}
	for _, line := range rec.lines {
		if strings.ContainsRune(line, '\r') {
			t.Errorf("line still contains carriage return: %q", line)
		}
	}
}

func TestDetectorPortConflictIsFatal(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("error: Address already in use\n"))
	if len(rec.fatals) != 1 {
		t.Fatalf("expected one fatal signal, got %d", len(rec.fatals))
	}
	if !strings.Contains(rec.fatals[0], "port already in use") {
		t.Errorf("unexpected fatal detail: %q", rec.fatals[0])
	}

	// Terminal: markers after the fatal are ignored
	d.Write([]byte("SOCKS proxy started\nNetwork status: OK\n"))
	if rec.ready != 0 {
		t.Error("expected no ready signal after fatal")
	}
}

func TestDetectorFatalLogLine(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("FATAL: cannot open netDb\n"))
	if len(rec.fatals) != 1 {
		t.Fatalf("expected one fatal signal, got %d", len(rec.fatals))
	}
}

func TestDetectorDisarmSuppressesMatching(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Disarm()
	d.Write([]byte("SOCKS proxy started\nNetwork status: OK\nAddress already in use\n"))

	if rec.ready != 0 {
		t.Error("expected no ready signal while disarmed")
	}
	if len(rec.fatals) != 0 {
		t.Error("expected no fatal signal while disarmed")
	}
	// Lines still reach the logger
	if len(rec.lines) != 3 {
		t.Errorf("expected 3 logged lines, got %d", len(rec.lines))
	}
}

func TestDetectorIgnoresEmptyLines(t *testing.T) {
	d, rec := newRecordedDetector()

	d.Write([]byte("\n\nSOCKS proxy started\n\n"))
	if len(rec.lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(rec.lines), rec.lines)
	}
}
