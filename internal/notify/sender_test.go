package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/db"
)

func TestNotifyFailureDeliversSignedEvent(t *testing.T) {
	received := make(chan []byte, 1)
	headers := make(chan http.Header, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(config.NotifyConfig{
		URL:         srv.URL,
		Secret:      "hunter2",
		Timeout:     time.Second,
		WorkerCount: 1,
		QueueSize:   10,
	})
	s.Start()
	defer s.Stop()

	s.NotifyFailure(&db.PrintJob{
		ID:           7,
		Name:         "receipt-front-desk-7",
		PrinterID:    3,
		ErrorMessage: "paper jam\nmaximum retry count exceeded",
		RetryCount:   3,
	})

	var body []byte
	select {
	case body = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	hdr := <-headers

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Event != eventJobFailed {
		t.Fatalf("event = %s", payload.Event)
	}
	if payload.EventID == "" {
		t.Fatal("expected an event id")
	}
	if payload.Data.JobID != 7 || payload.Data.RetryCount != 3 {
		t.Fatalf("data = %+v", payload.Data)
	}

	dataBytes, _ := json.Marshal(payload.Data)
	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(dataBytes)
	want := hex.EncodeToString(mac.Sum(nil))
	if payload.Signature != want {
		t.Fatalf("signature = %s, want %s", payload.Signature, want)
	}
	if hdr.Get("X-Event-Type") != eventJobFailed {
		t.Fatalf("type header = %s", hdr.Get("X-Event-Type"))
	}
}

func TestNotifyFailureWithoutURLIsNoop(t *testing.T) {
	s := NewSender(config.NotifyConfig{})
	s.Start()
	defer s.Stop()

	// Must not block or panic with no endpoint configured.
	s.NotifyFailure(&db.PrintJob{ID: 1, Name: "j"})
}
