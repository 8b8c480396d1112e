package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newDraftJob(t *testing.T, store *Store, printerID int64, priority int) *PrintJob {
	t.Helper()

	j := &PrintJob{
		DocumentType: "receipt",
		PrinterID:    printerID,
		SubmitterID:  "tester",
		DataFormat:   "escpos",
		Payload:      []byte("data"),
		Copies:       1,
		Priority:     priority,
		State:        "draft",
	}
	if err := store.Jobs.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestCreateRejectsInvalidRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")

	tests := []struct {
		name   string
		mutate func(*PrintJob)
	}{
		{"zero copies", func(j *PrintJob) { j.Copies = 0 }},
		{"negative priority", func(j *PrintJob) { j.Priority = -1 }},
		{"no payload and no template ref", func(j *PrintJob) { j.Payload = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &PrintJob{
				DocumentType: "receipt",
				PrinterID:    p.ID,
				SubmitterID:  "tester",
				DataFormat:   "escpos",
				Payload:      []byte("data"),
				Copies:       1,
				State:        "draft",
			}
			tt.mutate(j)
			if err := store.Jobs.Create(ctx, j); !errors.Is(err, ErrInvalidJob) {
				t.Fatalf("err = %v, want ErrInvalidJob", err)
			}
		})
	}
}

func TestJobTransitionsGuardCurrentState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")
	j := newDraftJob(t, store, p.ID, 0)

	ok, err := store.Jobs.MarkQueued(ctx, j.ID, time.Now(), "")
	if err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	if !ok {
		t.Fatal("expected draft -> queued to succeed")
	}

	// Second attempt must lose: the job is no longer draft.
	ok, err = store.Jobs.MarkQueued(ctx, j.ID, time.Now(), "")
	if err != nil {
		t.Fatalf("second mark queued: %v", err)
	}
	if ok {
		t.Fatal("expected second queued transition to match no row")
	}

	ok, err = store.Jobs.MarkPrinting(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("mark printing: ok=%v err=%v", ok, err)
	}

	// Completing from printing works; completing twice does not.
	ok, err = store.Jobs.MarkCompleted(ctx, j.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("mark completed: ok=%v err=%v", ok, err)
	}
	ok, err = store.Jobs.MarkCompleted(ctx, j.ID, time.Now())
	if err != nil {
		t.Fatalf("second mark completed: %v", err)
	}
	if ok {
		t.Fatal("expected second completed transition to match no row")
	}

	got, err := store.Jobs.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != "completed" {
		t.Fatalf("state = %s, want completed", got.State)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestFinalizeFailedFiresOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")
	j := newDraftJob(t, store, p.ID, 0)

	store.Jobs.MarkQueued(ctx, j.ID, time.Now(), "")
	store.Jobs.MarkPrinting(ctx, j.ID)
	store.Jobs.MarkFailed(ctx, j.ID, "paper jam")

	ok, err := store.Jobs.FinalizeFailed(ctx, j.ID, time.Now(), "paper jam")
	if err != nil || !ok {
		t.Fatalf("finalize: ok=%v err=%v", ok, err)
	}

	ok, err = store.Jobs.FinalizeFailed(ctx, j.ID, time.Now(), "paper jam")
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if ok {
		t.Fatal("finalize matched twice, must be at most once per job")
	}
}

func TestRequeueForRetryIncrementsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")
	j := newDraftJob(t, store, p.ID, 0)

	store.Jobs.MarkQueued(ctx, j.ID, time.Now(), "")

	for want := 1; want <= 3; want++ {
		store.Jobs.MarkPrinting(ctx, j.ID)
		store.Jobs.MarkFailed(ctx, j.ID, "connection refused")

		ok, err := store.Jobs.RequeueForRetry(ctx, j.ID, "connection refused")
		if err != nil || !ok {
			t.Fatalf("requeue %d: ok=%v err=%v", want, ok, err)
		}

		got, err := store.Jobs.GetByID(ctx, j.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.RetryCount != want {
			t.Fatalf("retry count = %d, want %d", got.RetryCount, want)
		}
		if got.State != "queued" {
			t.Fatalf("state = %s, want queued", got.State)
		}
	}
}

func TestCancelOnlyFromDraftOrQueued(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")

	queued := newDraftJob(t, store, p.ID, 0)
	store.Jobs.MarkQueued(ctx, queued.ID, time.Now(), "")
	ok, err := store.Jobs.Cancel(ctx, queued.ID, time.Now(), "not needed")
	if err != nil || !ok {
		t.Fatalf("cancel queued: ok=%v err=%v", ok, err)
	}

	printing := newDraftJob(t, store, p.ID, 0)
	store.Jobs.MarkQueued(ctx, printing.ID, time.Now(), "")
	store.Jobs.MarkPrinting(ctx, printing.ID)
	ok, err = store.Jobs.Cancel(ctx, printing.ID, time.Now(), "too late")
	if err != nil {
		t.Fatalf("cancel printing: %v", err)
	}
	if ok {
		t.Fatal("cancel must not match a printing job")
	}
}

func TestRestoreCancelledReturnsJobToQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")

	j := newDraftJob(t, store, p.ID, 0)
	submitted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.Jobs.MarkQueued(ctx, j.ID, submitted, "")
	store.Jobs.Cancel(ctx, j.ID, time.Now(), "combined into batch job x")

	ok, err := store.Jobs.RestoreCancelled(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}

	got, err := store.Jobs.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != "queued" {
		t.Fatalf("state = %s, want queued", got.State)
	}
	if got.CompletedAt != nil {
		t.Fatal("expected completed_at cleared on restore")
	}
	if got.ErrorMessage != "" {
		t.Fatalf("error message = %q, want empty", got.ErrorMessage)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(submitted) {
		t.Fatalf("submitted_at = %v, want original %v preserved", got.SubmittedAt, submitted)
	}

	// Only cancelled jobs match; the restored job does not.
	ok, err = store.Jobs.RestoreCancelled(ctx, j.ID)
	if err != nil {
		t.Fatalf("second restore: %v", err)
	}
	if ok {
		t.Fatal("restore must not match a queued job")
	}
}

func TestListQueuedForPrinterOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	low := newDraftJob(t, store, p.ID, 0)
	store.Jobs.MarkQueued(ctx, low.ID, base, "")

	highLate := newDraftJob(t, store, p.ID, 5)
	store.Jobs.MarkQueued(ctx, highLate.ID, base.Add(time.Minute), "")

	highEarly := newDraftJob(t, store, p.ID, 5)
	store.Jobs.MarkQueued(ctx, highEarly.ID, base, "")

	jobs, err := store.Jobs.ListQueuedForPrinter(ctx, p.ID)
	if err != nil {
		t.Fatalf("list queued: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}

	want := []int64{highEarly.ID, highLate.ID, low.ID}
	for i, j := range jobs {
		if j.ID != want[i] {
			t.Fatalf("position %d = job %d, want %d", i, j.ID, want[i])
		}
	}
}

func TestCountsByState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPrinter(t, store, "tm-88")

	a := newDraftJob(t, store, p.ID, 0)
	store.Jobs.MarkQueued(ctx, a.ID, time.Now(), "")
	newDraftJob(t, store, p.ID, 0)

	counts, err := store.Jobs.CountsByState(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["queued"] != 1 || counts["draft"] != 1 {
		t.Fatalf("counts = %v, want one queued and one draft", counts)
	}
}
