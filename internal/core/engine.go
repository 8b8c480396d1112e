package core

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/db"
)

// escposCut is the GS V 0 full-cut command used as the separator between
// batched ESC/POS labels. ZPL labels are self-contained and concatenate
// with no separator.
var escposCut = []byte{0x1D, 0x56, 0x00}

const retryExhaustedMessage = "maximum retry count exceeded"

// Engine orchestrates the print job lifecycle: submission, dispatch, retry,
// cancellation and label batching. All state transitions go through the
// store's guarded updates, so concurrent engines sharing a database cannot
// double-dispatch a job.
type Engine struct {
	store    *db.Store
	registry *Registry

	transport Transport
	renderer  Renderer
	notifier  NotificationSink

	cfg *config.EngineConfig
}

func NewEngine(store *db.Store, registry *Registry, transport Transport, renderer Renderer, notifier NotificationSink, cfg *config.EngineConfig) *Engine {
	if cfg == nil {
		cfg = &config.EngineConfig{
			MaxRetries:      3,
			DispatchTimeout: 10 * time.Second,
		}
	}
	return &Engine{
		store:     store,
		registry:  registry,
		transport: transport,
		renderer:  renderer,
		notifier:  notifier,
		cfg:       cfg,
	}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

type SubmitRequest struct {
	DocumentType string
	PrinterID    int64
	PrinterName  string
	LocationRef  string
	Department   string
	SubmitterID  string
	Format       Format
	Payload      []byte
	TemplateRef  string
	TemplateData map[string]any
	Copies       int
	Priority     int
}

// SubmitJob validates a submission, resolves its printer and persists the
// job as queued. Validation and resolution failures abort creation
// entirely; a resolved-but-inactive printer still queues, annotated as
// offline. The job is durably persisted before return.
func (e *Engine) SubmitJob(ctx context.Context, req SubmitRequest) (*db.PrintJob, error) {
	if req.Copies < 1 {
		return nil, fmt.Errorf("%w: copies must be at least 1", ErrValidation)
	}
	if req.Priority < 0 {
		return nil, fmt.Errorf("%w: priority cannot be negative", ErrValidation)
	}
	if !ValidFormat(req.Format) {
		return nil, fmt.Errorf("%w: invalid data format %q", ErrValidation, req.Format)
	}
	if req.DocumentType == "" {
		return nil, fmt.Errorf("%w: document type is required", ErrValidation)
	}

	hasPayload := len(req.Payload) > 0
	hasTemplate := req.TemplateRef != ""
	if hasPayload == hasTemplate {
		return nil, fmt.Errorf("%w: exactly one of payload or template reference must be set", ErrValidation)
	}

	payload := req.Payload
	templateData := ""
	if hasTemplate {
		rendered, err := e.renderer.Render(ctx, req.TemplateRef, req.TemplateData)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to render template %s: %v", ErrValidation, req.TemplateRef, err)
		}
		payload = rendered
		encoded, err := encodeTemplateData(req.TemplateData)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode template data: %v", ErrValidation, err)
		}
		templateData = encoded
	}

	printer, err := e.resolvePrinter(ctx, req)
	if err != nil {
		return nil, err
	}
	if printer == nil {
		return nil, fmt.Errorf("%w: no active printer for document type %q", ErrNoPrinterAvailable, req.DocumentType)
	}

	job := &db.PrintJob{
		DocumentType: req.DocumentType,
		PrinterID:    printer.ID,
		SubmitterID:  req.SubmitterID,
		DataFormat:   string(req.Format),
		Payload:      payload,
		TemplateRef:  req.TemplateRef,
		TemplateData: templateData,
		Copies:       req.Copies,
		Priority:     req.Priority,
		State:        string(JobStateDraft),
	}
	if err := e.store.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	job.Name = fmt.Sprintf("%s-%s-%d", req.DocumentType, printer.Name, job.ID)
	if err := e.store.Jobs.SetName(ctx, job.ID, job.Name); err != nil {
		return nil, err
	}

	annotation := ""
	if !printer.Active {
		annotation = fmt.Sprintf("printer %s is offline; job queued for later processing", printer.Name)
		log.Printf("[engine] job %s queued for offline printer %s", job.Name, printer.Name)
	}

	now := time.Now()
	if _, err := e.store.Jobs.MarkQueued(ctx, job.ID, now, annotation); err != nil {
		return nil, err
	}

	job.State = string(JobStateQueued)
	job.SubmittedAt = &now
	job.ErrorMessage = annotation

	log.Printf("[engine] job %s submitted by %s to printer %s", job.Name, req.SubmitterID, printer.Name)
	return job, nil
}

// resolvePrinter binds a submission to a printer. A printer id in the
// request is an existing binding: it only has to exist, an inactive printer
// queues with the offline annotation downstream. A printer name or the
// location/department hints go through registry selection, which requires
// an active printer.
func (e *Engine) resolvePrinter(ctx context.Context, req SubmitRequest) (*db.Printer, error) {
	if req.PrinterID > 0 {
		printer, err := e.store.Printers.GetByID(ctx, req.PrinterID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: id %d", ErrPrinterNotFound, req.PrinterID)
			}
			return nil, err
		}
		return printer, nil
	}

	return e.registry.SelectPrinter(ctx, SelectionRequest{
		CapabilityType: CapabilityType(req.DocumentType),
		PrinterName:    req.PrinterName,
		LocationRef:    req.LocationRef,
		Department:     req.Department,
	})
}

// DispatchJob pushes a queued job through the transport. The queued ->
// printing transition is the exclusion gate: a concurrent dispatcher or a
// cancel racing this call loses with ErrStateConflict. Transport failures
// are recorded on the job, classified and fed into automatic retry; they
// never surface as an error from this method. The returned job reflects the
// post-dispatch record.
func (e *Engine) DispatchJob(ctx context.Context, id int64) (*db.PrintJob, error) {
	job, err := e.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.State != string(JobStateQueued) {
		return nil, fmt.Errorf("%w: job %s is %s, not queued", ErrStateConflict, job.Name, job.State)
	}

	printer, err := e.store.Printers.GetByID(ctx, job.PrinterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load printer for job %s: %w", job.Name, err)
	}
	if !printer.Active {
		return nil, fmt.Errorf("%w: printer %s", ErrPrinterOffline, printer.Name)
	}

	swapped, err := e.store.Jobs.MarkPrinting(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, fmt.Errorf("%w: job %s was claimed by another dispatcher", ErrStateConflict, job.Name)
	}

	if !PrinterSupports(printer, Format(job.DataFormat)) {
		// No transient keyword in the message, so this classifies permanent.
		return e.recordDispatchFailure(ctx, job,
			fmt.Sprintf("printer %s does not support format %s", printer.Name, job.DataFormat))
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()

	err = e.transport.Dispatch(dispatchCtx, printer.SystemID, job.Payload, Format(job.DataFormat), DispatchOptions{
		Copies:      job.Copies,
		PaperSize:   printer.PaperSize,
		Orientation: printer.Orientation,
		Quality:     printer.Quality,
	})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "transport timeout: " + msg
		}
		return e.recordDispatchFailure(ctx, job, msg)
	}

	now := time.Now()
	if _, err := e.store.Jobs.MarkCompleted(ctx, job.ID, now); err != nil {
		return nil, err
	}

	log.Printf("[engine] job %s completed on printer %s", job.Name, printer.Name)
	return e.getJob(ctx, job.ID)
}

// recordDispatchFailure moves a printing job to failed, then decides
// between automatic retry and terminal failure based on the classifier and
// the retry budget.
func (e *Engine) recordDispatchFailure(ctx context.Context, job *db.PrintJob, errMsg string) (*db.PrintJob, error) {
	if _, err := e.store.Jobs.MarkFailed(ctx, job.ID, errMsg); err != nil {
		return nil, err
	}
	log.Printf("[engine] job %s failed: %s", job.Name, errMsg)

	if IsTransientError(errMsg) && job.RetryCount < e.cfg.MaxRetries {
		swapped, err := e.store.Jobs.RequeueForRetry(ctx, job.ID, errMsg)
		if err != nil {
			return nil, err
		}
		if swapped {
			log.Printf("[engine] job %s requeued for retry %d/%d", job.Name, job.RetryCount+1, e.cfg.MaxRetries)
		}
		return e.getJob(ctx, job.ID)
	}

	finalMsg := errMsg
	if IsTransientError(errMsg) {
		finalMsg = errMsg + "\n" + retryExhaustedMessage
	}
	if err := e.finalizeFailure(ctx, job.ID, finalMsg); err != nil {
		return nil, err
	}
	return e.getJob(ctx, job.ID)
}

// finalizeFailure stamps a failed job terminal and fires the notification
// sink. The guarded update matches at most once per job, which is what
// keeps the notification to exactly one call.
func (e *Engine) finalizeFailure(ctx context.Context, id int64, errMsg string) error {
	swapped, err := e.store.Jobs.FinalizeFailed(ctx, id, time.Now(), errMsg)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	job, err := e.getJob(ctx, id)
	if err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.NotifyFailure(job)
	}
	return nil
}

// RetryJob manually requeues a failed job. Permanent errors and finalized
// failures are rejected as validation failures with the retry count
// untouched; an exhausted retry budget finalizes the job instead of
// requeueing it.
func (e *Engine) RetryJob(ctx context.Context, id int64) error {
	job, err := e.getJob(ctx, id)
	if err != nil {
		return err
	}

	if job.State != string(JobStateFailed) {
		return fmt.Errorf("%w: only failed jobs can be retried, job %s is %s", ErrStateConflict, job.Name, job.State)
	}
	if job.CompletedAt != nil {
		return fmt.Errorf("%w: job %s failure is final", ErrValidation, job.Name)
	}
	if !IsTransientError(job.ErrorMessage) {
		return fmt.Errorf("%w: job %s has a permanent error and cannot be retried", ErrValidation, job.Name)
	}

	if job.RetryCount >= e.cfg.MaxRetries {
		if err := e.finalizeFailure(ctx, job.ID, job.ErrorMessage+"\n"+retryExhaustedMessage); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s for job %s", ErrValidation, retryExhaustedMessage, job.Name)
	}

	swapped, err := e.store.Jobs.RequeueForRetry(ctx, job.ID, job.ErrorMessage)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: job %s changed state during retry", ErrStateConflict, job.Name)
	}

	log.Printf("[engine] job %s manually requeued (attempt %d/%d)", job.Name, job.RetryCount+1, e.cfg.MaxRetries)
	return nil
}

// CancelJob cancels a draft or queued job. A job already claimed by a
// dispatcher (printing) cannot be cancelled: once the transport has been
// invoked the engine can only record the eventual outcome.
func (e *Engine) CancelJob(ctx context.Context, id int64, reason string) error {
	job, err := e.getJob(ctx, id)
	if err != nil {
		return err
	}

	swapped, err := e.store.Jobs.Cancel(ctx, job.ID, time.Now(), reason)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: job %s cannot be cancelled in state %s", ErrStateConflict, job.Name, job.State)
	}

	log.Printf("[engine] job %s cancelled", job.Name)
	return nil
}

// ReprintJob clones a finished job into a fresh queued submission against
// the same printer.
func (e *Engine) ReprintJob(ctx context.Context, id int64) (*db.PrintJob, error) {
	job, err := e.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	printer, err := e.store.Printers.GetByID(ctx, job.PrinterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load printer for job %s: %w", job.Name, err)
	}

	clone := &db.PrintJob{
		DocumentType: job.DocumentType,
		PrinterID:    job.PrinterID,
		SubmitterID:  job.SubmitterID,
		DataFormat:   job.DataFormat,
		Payload:      job.Payload,
		TemplateRef:  job.TemplateRef,
		TemplateData: job.TemplateData,
		Copies:       job.Copies,
		Priority:     job.Priority,
		State:        string(JobStateDraft),
	}
	if err := e.store.Jobs.Create(ctx, clone); err != nil {
		return nil, err
	}

	clone.Name = fmt.Sprintf("%s-%s-%d", clone.DocumentType, printer.Name, clone.ID)
	if err := e.store.Jobs.SetName(ctx, clone.ID, clone.Name); err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := e.store.Jobs.MarkQueued(ctx, clone.ID, now, ""); err != nil {
		return nil, err
	}

	clone.State = string(JobStateQueued)
	clone.SubmittedAt = &now
	return clone, nil
}

// BatchLabelJobs merges queued label jobs on one printer into a single
// combined job and cancels the constituents as bookkeeping. All-or-nothing:
// any precondition violation rejects the whole batch with nothing mutated.
// A single-job batch is returned unchanged.
func (e *Engine) BatchLabelJobs(ctx context.Context, ids []int64) (*db.PrintJob, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no jobs provided", ErrInvalidBatch)
	}

	jobs := make([]*db.PrintJob, 0, len(ids))
	for _, id := range ids {
		job, err := e.getJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if len(jobs) == 1 {
		return jobs[0], nil
	}

	printerID := jobs[0].PrinterID
	format := jobs[0].DataFormat
	for _, job := range jobs {
		if job.State != string(JobStateQueued) {
			return nil, fmt.Errorf("%w: job %s is %s, not queued", ErrInvalidBatch, job.Name, job.State)
		}
		if job.PrinterID != printerID {
			return nil, fmt.Errorf("%w: jobs span multiple printers", ErrInvalidBatch)
		}
		if job.DataFormat != format {
			return nil, fmt.Errorf("%w: jobs mix data formats", ErrInvalidBatch)
		}
	}

	if format != string(FormatZPL) && format != string(FormatESCPOS) {
		return nil, fmt.Errorf("%w: format %s cannot be concatenated", ErrInvalidBatch, format)
	}

	printer, err := e.store.Printers.GetByID(ctx, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load printer: %w", err)
	}
	if printer.CapabilityType != string(CapabilityLabel) {
		return nil, fmt.Errorf("%w: printer %s is not a label printer", ErrInvalidBatch, printer.Name)
	}

	var separator []byte
	if format == string(FormatESCPOS) {
		separator = escposCut
	}

	var combined bytes.Buffer
	maxPriority := 0
	for i, job := range jobs {
		if i > 0 && len(separator) > 0 {
			combined.Write(separator)
		}
		combined.Write(job.Payload)
		if job.Priority > maxPriority {
			maxPriority = job.Priority
		}
	}

	batch := &db.PrintJob{
		DocumentType: "label_batch",
		PrinterID:    printerID,
		SubmitterID:  jobs[0].SubmitterID,
		DataFormat:   format,
		Payload:      combined.Bytes(),
		Copies:       1,
		Priority:     maxPriority,
		State:        string(JobStateDraft),
	}
	if err := e.store.Jobs.Create(ctx, batch); err != nil {
		return nil, err
	}

	batch.Name = fmt.Sprintf("label_batch-%s-%d", printer.Name, batch.ID)
	if err := e.store.Jobs.SetName(ctx, batch.ID, batch.Name); err != nil {
		return nil, err
	}

	// Claim every constituent through the cancel gate while the combined job
	// is still a non-dispatchable draft. A constituent that loses the gate
	// was taken by a concurrent dispatcher between validation and here; the
	// merge unwinds completely so its payload never prints twice.
	now := time.Now()
	reason := fmt.Sprintf("combined into batch job %s", batch.Name)
	claimed := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		swapped, err := e.store.Jobs.Cancel(ctx, job.ID, now, reason)
		if err != nil {
			return nil, err
		}
		if !swapped {
			e.unwindBatch(ctx, batch, claimed)
			return nil, fmt.Errorf("%w: job %s was claimed while batching", ErrStateConflict, job.Name)
		}
		claimed = append(claimed, job.ID)
	}

	if _, err := e.store.Jobs.MarkQueued(ctx, batch.ID, now, ""); err != nil {
		return nil, err
	}
	batch.State = string(JobStateQueued)
	batch.SubmittedAt = &now

	log.Printf("[engine] batched %d label jobs into %s for printer %s", len(jobs), batch.Name, printer.Name)
	return batch, nil
}

// unwindBatch aborts a half-built merge: already-claimed constituents go
// back to the queue and the draft combined job is cancelled.
func (e *Engine) unwindBatch(ctx context.Context, batch *db.PrintJob, claimed []int64) {
	for _, id := range claimed {
		if _, err := e.store.Jobs.RestoreCancelled(ctx, id); err != nil {
			log.Printf("[engine] failed to restore job %d after aborted batch: %v", id, err)
		}
	}
	if _, err := e.store.Jobs.Cancel(ctx, batch.ID, time.Now(), "batch aborted"); err != nil {
		log.Printf("[engine] failed to cancel aborted batch %s: %v", batch.Name, err)
	}
}

func (e *Engine) getJob(ctx context.Context, id int64) (*db.PrintJob, error) {
	job, err := e.store.Jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
		}
		return nil, err
	}
	return job, nil
}
