package core

import (
	"context"

	"github.com/orrn/printflow/internal/db"
)

type JobState string

const (
	JobStateDraft     JobState = "draft"
	JobStateQueued    JobState = "queued"
	JobStatePrinting  JobState = "printing"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

type CapabilityType string

const (
	CapabilityReceipt  CapabilityType = "receipt"
	CapabilityLabel    CapabilityType = "label"
	CapabilityDocument CapabilityType = "document"
	CapabilityOther    CapabilityType = "other"
)

type Format string

const (
	FormatPDF    Format = "pdf"
	FormatHTML   Format = "html"
	FormatESCPOS Format = "escpos"
	FormatZPL    Format = "zpl"
)

func ValidFormat(f Format) bool {
	switch f {
	case FormatPDF, FormatHTML, FormatESCPOS, FormatZPL:
		return true
	}
	return false
}

// PrinterSupports reports whether a printer advertises support for a
// rendered data format.
func PrinterSupports(p *db.Printer, f Format) bool {
	switch f {
	case FormatPDF:
		return p.SupportsPDF
	case FormatHTML:
		return p.SupportsHTML
	case FormatESCPOS:
		return p.SupportsESCPOS
	case FormatZPL:
		return p.SupportsZPL
	}
	return false
}

type DispatchOptions struct {
	Copies      int
	PaperSize   string
	Orientation string
	Quality     string
}

// Transport physically dispatches rendered content to an OS-level printer.
// Any non-nil error is recorded on the job and classified; it is never
// engine-fatal.
type Transport interface {
	Dispatch(ctx context.Context, systemID string, payload []byte, format Format, opts DispatchOptions) error
}

// Renderer produces printable bytes from a stored template and structured
// data. Consumed at submission time for template-based jobs.
type Renderer interface {
	Render(ctx context.Context, templateRef string, data map[string]any) ([]byte, error)
}

// NotificationSink receives terminal-failure events. Fire and forget: its
// errors must never roll back a job's terminal state.
type NotificationSink interface {
	NotifyFailure(job *db.PrintJob)
}
