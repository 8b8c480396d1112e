package db

import (
	"time"
)

type Printer struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CapabilityType string    `json:"capability_type"`
	SystemID       string    `json:"system_id"`
	PaperSize      string    `json:"paper_size"`
	Orientation    string    `json:"orientation"`
	Quality        string    `json:"quality"`
	Priority       int       `json:"priority"`
	IsDefault      bool      `json:"is_default"`
	LocationRef    string    `json:"location_ref"`
	Department     string    `json:"department"`
	SupportsPDF    bool      `json:"supports_pdf"`
	SupportsHTML   bool      `json:"supports_html"`
	SupportsESCPOS bool      `json:"supports_escpos"`
	SupportsZPL    bool      `json:"supports_zpl"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type PrintJob struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	DocumentType string     `json:"document_type"`
	PrinterID    int64      `json:"printer_id"`
	SubmitterID  string     `json:"submitter_id"`
	DataFormat   string     `json:"data_format"`
	Payload      []byte     `json:"payload,omitempty"`
	TemplateRef  string     `json:"template_ref,omitempty"`
	TemplateData string     `json:"template_data,omitempty"`
	Copies       int        `json:"copies"`
	Priority     int        `json:"priority"`
	State        string     `json:"state"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type PrintTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Body        string    `json:"body"`
	DataFormat  string    `json:"data_format"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type JobFilter struct {
	PrinterID   int64
	State       string
	SubmitterID string
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}
