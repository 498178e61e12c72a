package testutil

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("test error"))
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()
	req := NewTestRequest(http.MethodGet, "/api/status")
	if req.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.URL.Path != "/api/status" {
		t.Errorf("Path = %q, want /api/status", req.URL.Path)
	}
	if rec := NewTestRecorder(); rec.Code != http.StatusOK {
		t.Errorf("recorder initial code = %d, want 200", rec.Code)
	}
}

func TestScriptedReader_StepsAndTimeouts(t *testing.T) {
	r := NewScriptedReader([]byte{1, 2, 3}, Timeout, []byte{4})

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	if n != 2 || err != nil || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("first read = (%d, %v, %v), want (2, nil, [1 2])", n, err, buf)
	}
	n, err = r.Read(buf)
	if n != 1 || err != nil || buf[0] != 3 {
		t.Fatalf("second read = (%d, %v), want remainder of first step", n, err)
	}
	n, err = r.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("timeout step = (%d, %v), want (0, nil)", n, err)
	}
	n, err = r.Read(buf)
	if n != 1 || err != nil || buf[0] != 4 {
		t.Fatalf("last step = (%d, %v), want (1, nil)", n, err)
	}
	if _, err = r.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("exhausted read err = %v, want io.EOF", err)
	}
	if r.Reads() != 5 {
		t.Errorf("Reads() = %d, want 5", r.Reads())
	}
}

func TestScriptedReader_CustomError(t *testing.T) {
	boom := errors.New("port unplugged")
	r := NewScriptedReader()
	r.Err = boom
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestConcat(t *testing.T) {
	got := Concat([]byte{1}, nil, []byte{2, 3})
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Concat = %v, want [1 2 3]", got)
	}
}
