// Package testutil provides shared test utilities and fixtures.
//
// The helpers here are used by package tests across the capture pipeline:
// assertions, HTTP recorders and a scripted byte source that stands in for a
// serial port.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Timeout is a ScriptedReader step that returns no data and no error, the
// way a serial port reports a read timeout.
var Timeout []byte

// ScriptedReader replays a fixed sequence of read results. Each step is
// returned by one or more Read calls (a step larger than the caller's buffer
// is split); a nil step yields (0, nil). Once the script is exhausted Read
// returns Err, or io.EOF when Err is nil.
type ScriptedReader struct {
	mu    sync.Mutex
	steps [][]byte
	Err   error
	reads int
}

// NewScriptedReader returns a reader that replays steps in order.
func NewScriptedReader(steps ...[]byte) *ScriptedReader {
	return &ScriptedReader{steps: steps}
}

// Read implements io.Reader.
func (r *ScriptedReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	if len(r.steps) == 0 {
		if r.Err != nil {
			return 0, r.Err
		}
		return 0, io.EOF
	}

	step := r.steps[0]
	if step == nil {
		r.steps = r.steps[1:]
		return 0, nil
	}
	n := copy(p, step)
	if n == len(step) {
		r.steps = r.steps[1:]
	} else {
		r.steps[0] = step[n:]
	}
	return n, nil
}

// Reads returns the number of Read calls made so far.
func (r *ScriptedReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// Concat joins byte slices, which keeps packet fixtures readable.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
