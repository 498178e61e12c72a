package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func TestNewStandardClient_NilUsesDefault(t *testing.T) {
	c := NewStandardClient(nil)
	if c.Client != http.DefaultClient {
		t.Error("expected http.DefaultClient when nil is passed")
	}
}

func TestGetJSON_Decodes(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, `{"x":1.5,"y":-2}`)

	var got point
	if err := GetJSON(context.Background(), mock, "http://sensor.local/api/scan", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got != (point{X: 1.5, Y: -2}) {
		t.Errorf("got %+v", got)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("RequestCount() = %d, want 1", mock.RequestCount())
	}
	req := mock.Requests[0]
	if req.Method != http.MethodGet || req.URL.Path != "/api/scan" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if req.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", req.Header.Get("Accept"))
	}
}

func TestGetJSON_StatusError(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusNotFound, `{"error":"no scan published yet"}`).
		AddResponse(http.StatusBadGateway, `upstream down`)

	var got point
	err := GetJSON(context.Background(), mock, "http://sensor.local/api/scan", &got)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Message != "no scan published yet" {
		t.Errorf("StatusError = %+v", se)
	}

	err = GetJSON(context.Background(), mock, "http://sensor.local/api/scan", &got)
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway || se.Message != "" {
		t.Errorf("second err = %v", err)
	}
	if se.Error() != "http 502" {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestGetJSON_TransportAndDecodeErrors(t *testing.T) {
	boom := errors.New("connection refused")
	mock := NewMockHTTPClient().
		AddErrorResponse(boom).
		AddResponse(http.StatusOK, `not json`)

	var got point
	if err := GetJSON(context.Background(), mock, "http://x/", &got); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if err := GetJSON(context.Background(), mock, "http://x/", &got); err == nil {
		t.Error("expected a decode error")
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req := httptest.NewRequest(http.MethodGet, "http://x/", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetJSON_StandardClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, point{X: 3, Y: 4})
	}))
	defer srv.Close()

	var got point
	if err := GetJSON(context.Background(), NewStandardClient(srv.Client()), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got != (point{X: 3, Y: 4}) {
		t.Errorf("got %+v", got)
	}
}
