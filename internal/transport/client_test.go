package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/core"
)

func TestDispatchPostsPayload(t *testing.T) {
	var got dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/print" {
			t.Errorf("path = %s, want /print", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAgentClient(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	err := c.Dispatch(context.Background(), "sys-tm88", []byte("hello"), core.FormatESCPOS, core.DispatchOptions{
		Copies: 2, PaperSize: "a4",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got.Printer != "sys-tm88" {
		t.Fatalf("printer = %s", got.Printer)
	}
	if got.Copies != 2 {
		t.Fatalf("copies = %d", got.Copies)
	}
	decoded, _ := base64.StdEncoding.DecodeString(got.Data)
	if string(decoded) != "hello" {
		t.Fatalf("data = %q", decoded)
	}
}

func TestDispatchAgentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(dispatchResponse{Error: "malformed zpl"})
	}))
	defer srv.Close()

	c := NewAgentClient(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	err := c.Dispatch(context.Background(), "sys", nil, core.FormatZPL, core.DispatchOptions{})
	if err == nil || !strings.Contains(err.Error(), "malformed zpl") {
		t.Fatalf("err = %v, want agent rejection with reason", err)
	}
	// A rejection carries no transient keyword: it must classify permanent.
	if core.IsTransientError(err.Error()) {
		t.Fatalf("rejection %q classified transient", err.Error())
	}
}

func TestDispatchConnectionFailureIsTransient(t *testing.T) {
	c := NewAgentClient(config.AgentConfig{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})

	err := c.Dispatch(context.Background(), "sys", nil, core.FormatPDF, core.DispatchOptions{})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !core.IsTransientError(err.Error()) {
		t.Fatalf("connection failure %q must classify transient", err.Error())
	}
}

func TestDispatchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAgentClient(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	err := c.Dispatch(context.Background(), "sys", nil, core.FormatPDF, core.DispatchOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !core.IsTransientError(err.Error()) {
		t.Fatalf("5xx %q must classify transient", err.Error())
	}
}

func TestListPrinters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/printers" {
			t.Errorf("path = %s, want /printers", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"printers": []string{"EPSON TM-T88V", "Zebra ZD420"}})
	}))
	defer srv.Close()

	c := NewAgentClient(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	names, err := c.ListPrinters(context.Background())
	if err != nil {
		t.Fatalf("list printers: %v", err)
	}
	if len(names) != 2 || names[0] != "EPSON TM-T88V" {
		t.Fatalf("names = %v", names)
	}
}
