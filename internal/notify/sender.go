package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/db"
)

const eventJobFailed = "job_failed"

type eventPayload struct {
	EventID   string       `json:"event_id"`
	Event     string       `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	Data      jobEventData `json:"data"`
	Signature string       `json:"signature,omitempty"`
}

type jobEventData struct {
	JobID        int64  `json:"job_id"`
	JobName      string `json:"job_name"`
	PrinterID    int64  `json:"printer_id"`
	SubmitterID  string `json:"submitter_id,omitempty"`
	ErrorMessage string `json:"error_message"`
	RetryCount   int    `json:"retry_count"`
}

// Sender delivers terminal-failure events to a configured endpoint over
// HTTP. Delivery runs on background workers behind a bounded queue so a
// slow or dead endpoint never blocks the job lifecycle; a full queue drops
// the event with a log line.
type Sender struct {
	url        string
	secret     string
	httpClient *http.Client
	queue      chan *eventPayload
	stopCh     chan struct{}
	wg         sync.WaitGroup
	workers    int
}

func NewSender(cfg config.NotifyConfig) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		url:    cfg.URL,
		secret: cfg.Secret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		queue:   make(chan *eventPayload, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		workers: cfg.WorkerCount,
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// NotifyFailure enqueues a job-failed event. Fire and forget.
func (s *Sender) NotifyFailure(job *db.PrintJob) {
	if s.url == "" {
		return
	}

	payload := &eventPayload{
		EventID:   uuid.New().String(),
		Event:     eventJobFailed,
		Timestamp: time.Now(),
		Data: jobEventData{
			JobID:        job.ID,
			JobName:      job.Name,
			PrinterID:    job.PrinterID,
			SubmitterID:  job.SubmitterID,
			ErrorMessage: job.ErrorMessage,
			RetryCount:   job.RetryCount,
		},
	}

	select {
	case s.queue <- payload:
	default:
		log.Printf("[notify] queue full, dropping event for job %s", job.Name)
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case payload := <-s.queue:
			if err := s.send(payload); err != nil {
				log.Printf("[notify worker %d] failed to deliver event %s for job %d: %v",
					id, payload.EventID, payload.Data.JobID, err)
			}
		}
	}
}

func (s *Sender) send(payload *eventPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if s.secret != "" {
		payload.Signature = s.sign(dataBytes)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Signature", payload.Signature)
	req.Header.Set("X-Event-Type", payload.Event)
	req.Header.Set("X-Event-ID", payload.EventID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func (s *Sender) sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
