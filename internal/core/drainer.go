package core

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/db"
)

// DrainSummary reports one drain pass. Batched counts the constituent jobs
// folded into combined label jobs; the combined jobs themselves count in
// Processed.
type DrainSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Batched   int `json:"batched"`
}

func (s *DrainSummary) add(other DrainSummary) {
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Batched += other.Batched
}

// Drainer periodically pushes queued jobs through the engine. One pass walks
// active printers by descending priority; a failure on one printer never
// blocks the rest.
type Drainer struct {
	store  *db.Store
	engine *Engine

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewDrainer(store *db.Store, engine *Engine, cfg *config.DrainerConfig) *Drainer {
	interval := 30 * time.Second
	if cfg != nil && cfg.Interval > 0 {
		interval = cfg.Interval
	}
	return &Drainer{
		store:    store,
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background drain loop. Safe to call once.
func (d *Drainer) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run()
	log.Printf("[drainer] started, interval %s", d.interval)
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (d *Drainer) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	log.Printf("[drainer] stopped")
}

func (d *Drainer) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			summary, err := d.DrainAll(context.Background())
			if err != nil {
				log.Printf("[drainer] drain pass failed: %v", err)
				continue
			}
			if summary.Processed > 0 {
				log.Printf("[drainer] pass complete: processed=%d succeeded=%d failed=%d batched=%d",
					summary.Processed, summary.Succeeded, summary.Failed, summary.Batched)
			}
		}
	}
}

// DrainAll runs one pass over every active printer. Per-printer errors are
// logged and skipped so a bad printer cannot starve the others.
func (d *Drainer) DrainAll(ctx context.Context) (*DrainSummary, error) {
	printers, err := d.store.Printers.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	summary := &DrainSummary{}
	for _, p := range printers {
		ps, err := d.DrainPrinter(ctx, p)
		if err != nil {
			log.Printf("[drainer] printer %s: %v", p.Name, err)
			continue
		}
		summary.add(*ps)
	}
	return summary, nil
}

// DrainPrinter dispatches the queued jobs of a single printer in queue
// order. Label printers get their batchable jobs combined first, then the
// queue is re-read so the combined job dispatches in place of its
// constituents.
func (d *Drainer) DrainPrinter(ctx context.Context, p *db.Printer) (*DrainSummary, error) {
	summary := &DrainSummary{}

	jobs, err := d.store.Jobs.ListQueuedForPrinter(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return summary, nil
	}

	if p.CapabilityType == string(CapabilityLabel) {
		batched, err := d.batchLabels(ctx, jobs)
		if err != nil {
			log.Printf("[drainer] batching for printer %s skipped: %v", p.Name, err)
		} else if batched > 0 {
			summary.Batched += batched
			jobs, err = d.store.Jobs.ListQueuedForPrinter(ctx, p.ID)
			if err != nil {
				return nil, err
			}
		}
	}

	for _, job := range jobs {
		summary.Processed++
		result, err := d.engine.DispatchJob(ctx, job.ID)
		if err != nil {
			// Lost races and offline flips mid-pass are not dispatch failures;
			// the job is untouched and will surface on a later pass.
			if errors.Is(err, ErrStateConflict) || errors.Is(err, ErrPrinterOffline) {
				summary.Processed--
				continue
			}
			summary.Failed++
			log.Printf("[drainer] job %s: %v", job.Name, err)
			continue
		}
		if result.State == string(JobStateCompleted) {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	return summary, nil
}

// batchLabels combines the queued jobs sharing a concatenable format.
// Returns the number of constituent jobs folded into combined jobs.
func (d *Drainer) batchLabels(ctx context.Context, jobs []*db.PrintJob) (int, error) {
	byFormat := map[string][]int64{}
	for _, job := range jobs {
		if job.DataFormat == string(FormatZPL) || job.DataFormat == string(FormatESCPOS) {
			byFormat[job.DataFormat] = append(byFormat[job.DataFormat], job.ID)
		}
	}

	total := 0
	for _, ids := range byFormat {
		if len(ids) < 2 {
			continue
		}
		if _, err := d.engine.BatchLabelJobs(ctx, ids); err != nil {
			return total, err
		}
		total += len(ids)
	}
	return total, nil
}
