package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sieve/internal/config"
	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/services"
	"sieve/internal/services/tool"
	"sieve/internal/stage"
	"sieve/internal/stages"
	"sieve/internal/testsupport"
	"sieve/internal/workflow"
)

type stubStage struct {
	name        string
	executeHook func(context.Context, *queue.Item) error
	health      stage.Health

	mu    sync.Mutex
	calls []string
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Execute(ctx context.Context, item queue.Item) (queue.Item, error) {
	s.mu.Lock()
	s.calls = append(s.calls, item.RunID)
	s.mu.Unlock()
	if s.executeHook != nil {
		if err := s.executeHook(ctx, &item); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type recordingInvoker struct {
	mu       sync.Mutex
	requests []tool.Request
}

func (r *recordingInvoker) Invoke(_ context.Context, req tool.Request, _ func(string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return nil
}

func (r *recordingInvoker) runIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.requests))
	for _, req := range r.requests {
		ids = append(ids, req.RunID)
	}
	return ids
}

func startManager(t *testing.T, cfg *config.Config, store *queue.Store, set workflow.StageSet) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithPollInterval(10*time.Millisecond),
		workflow.WithHeartbeatInterval(20*time.Millisecond),
	)
	mgr.ConfigureStages(set)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func waitIdle(t *testing.T, mgr *workflow.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := mgr.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestManagerIsolatesCorruptItemInBatch(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithWorkers(workers, workers))
			store := testsupport.MustOpenStore(t, cfg)

			const total = 4
			const corruptIndex = 2
			corruptMember := "m64012_200101_000000.sts.xml"
			var ids []int64
			for i := 0; i < total; i++ {
				opts := testsupport.RunOptions{BulkSize: 64 * 1024}
				if i == corruptIndex {
					opts.Corrupt = []string{corruptMember}
				}
				runID := fmt.Sprintf("run-%d", i)
				fixture := testsupport.BuildRunArchive(t, filepath.Join(testsupport.BaseDir(cfg), "in", runID+".tar.gz"), opts)
				ids = append(ids, testsupport.Enqueue(t, store, runID, fixture.Path).ID)
			}

			validator, err := stages.NewValidator(cfg, store, logging.NewNop())
			if err != nil {
				t.Fatalf("NewValidator: %v", err)
			}
			invoker := &recordingInvoker{}
			mgr := startManager(t, cfg, store, workflow.StageSet{
				Inspector: stages.NewInspector(cfg, logging.NewNop()),
				Validator: validator,
				Handoff:   stages.NewHandoffWithInvoker(store, invoker, "tool", logging.NewNop()),
			})
			waitIdle(t, mgr)

			ctx := context.Background()
			completed := 0
			for i, id := range ids {
				item, err := store.GetByID(ctx, id)
				if err != nil {
					t.Fatalf("GetByID: %v", err)
				}
				if i == corruptIndex {
					if item.Status != queue.StatusFailed {
						t.Fatalf("expected corrupt item failed, got %s", item.Status)
					}
					if item.ErrorKind != string(services.KindChecksumMismatch) {
						t.Fatalf("expected checksum_mismatch, got %q", item.ErrorKind)
					}
					if len(item.FailedMembers) != 1 || item.FailedMembers[0] != corruptMember {
						t.Fatalf("expected failing member %s, got %v", corruptMember, item.FailedMembers)
					}
					continue
				}
				if item.Status != queue.StatusCompleted || item.ToolStatus != queue.ToolSucceeded {
					t.Fatalf("item %d: expected completed/succeeded, got %s/%q (%s)", i, item.Status, item.ToolStatus, item.ErrorMessage)
				}
				completed++
			}
			if completed != total-1 {
				t.Fatalf("expected %d completed items, got %d", total-1, completed)
			}
			for _, runID := range invoker.runIDs() {
				if runID == fmt.Sprintf("run-%d", corruptIndex) {
					t.Fatal("failed item must not be handed to the tool")
				}
			}
			if len(invoker.runIDs()) != total-1 {
				t.Fatalf("expected %d tool invocations, got %v", total-1, invoker.runIDs())
			}
		})
	}
}

// inFlight tracks how many stage executions overlap.
type inFlight struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *inFlight) hold(d time.Duration) func(context.Context, *queue.Item) error {
	return func(ctx context.Context, _ *queue.Item) error {
		g.mu.Lock()
		g.current++
		g.peak = max(g.peak, g.current)
		g.mu.Unlock()
		defer func() {
			g.mu.Lock()
			g.current--
			g.mu.Unlock()
		}()
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *inFlight) highest() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func TestManagerBoundsConcurrencyPerLane(t *testing.T) {
	tests := []struct {
		validation int
		tool       int
	}{
		{1, 1},
		{3, 1},
		{1, 2},
		{3, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("validation=%d/tool=%d", tt.validation, tt.tool), func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithWorkers(tt.validation, tt.tool))
			store := testsupport.MustOpenStore(t, cfg)
			const total = 6
			for i := 0; i < total; i++ {
				testsupport.Enqueue(t, store, fmt.Sprintf("run-%d", i), fmt.Sprintf("/data/run-%d.tar", i))
			}

			validationLane := &inFlight{}
			toolLane := &inFlight{}
			inspector := newStubStage("inspector")
			inspector.executeHook = validationLane.hold(40 * time.Millisecond)
			validator := newStubStage("validator")
			validator.executeHook = validationLane.hold(40 * time.Millisecond)
			handoff := newStubStage("handoff")
			handoff.executeHook = toolLane.hold(150 * time.Millisecond)

			mgr := startManager(t, cfg, store, workflow.StageSet{Inspector: inspector, Validator: validator, Handoff: handoff})
			waitIdle(t, mgr)

			completed, err := store.List(context.Background(), queue.StatusCompleted)
			if err != nil || len(completed) != total {
				t.Fatalf("expected %d completed items, got %d err=%v", total, len(completed), err)
			}
			for _, lane := range []struct {
				name    string
				gauge   *inFlight
				workers int
			}{
				{"validation", validationLane, tt.validation},
				{"tool", toolLane, tt.tool},
			} {
				peak := lane.gauge.highest()
				if peak > lane.workers {
					t.Fatalf("%s lane ran %d stages at once, bound is %d", lane.name, peak, lane.workers)
				}
				if lane.workers > 1 && peak < 2 {
					t.Fatalf("%s lane never overlapped with %d workers", lane.name, lane.workers)
				}
			}
		})
	}
}

func TestManagerDispatchesInInputOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	for i := 0; i < 5; i++ {
		testsupport.Enqueue(t, store, fmt.Sprintf("run-%d", i), fmt.Sprintf("/data/run-%d.tar", i))
	}

	inspector := newStubStage("inspector")
	validator := newStubStage("validator")
	mgr := startManager(t, cfg, store, workflow.StageSet{Inspector: inspector, Validator: validator})
	waitIdle(t, mgr)

	got := validator.seen()
	if len(got) != 5 {
		t.Fatalf("expected 5 validations, got %v", got)
	}
	for i, runID := range got {
		if runID != fmt.Sprintf("run-%d", i) {
			t.Fatalf("expected input order, got %v", got)
		}
	}

	items, err := store.List(context.Background(), queue.StatusValidated)
	if err != nil || len(items) != 5 {
		t.Fatalf("expected 5 validated items without a tool lane, got %d err=%v", len(items), err)
	}
}

func TestManagerStageFailureDoesNotStopLane(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	for i := 0; i < 3; i++ {
		testsupport.Enqueue(t, store, fmt.Sprintf("run-%d", i), fmt.Sprintf("/data/run-%d.tar", i))
	}

	inspector := newStubStage("inspector")
	inspector.executeHook = func(_ context.Context, item *queue.Item) error {
		if item.RunID == "run-0" {
			return services.Wrap(services.ErrEmptyArchive, "inspector", "inspect", "no members", nil)
		}
		return nil
	}
	validator := newStubStage("validator")
	mgr := startManager(t, cfg, store, workflow.StageSet{Inspector: inspector, Validator: validator})
	waitIdle(t, mgr)

	failed, err := store.List(context.Background(), queue.StatusFailed)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected one failed item, got %d err=%v", len(failed), err)
	}
	if failed[0].RunID != "run-0" || failed[0].ErrorKind != string(services.KindEmptyArchive) {
		t.Fatalf("unexpected failed item %#v", failed[0])
	}
	validated, err := store.List(context.Background(), queue.StatusValidated)
	if err != nil || len(validated) != 2 {
		t.Fatalf("expected two validated items, got %d err=%v", len(validated), err)
	}
}

func TestManagerRollsBackInterruptedItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.Enqueue(t, store, "run-0", "/data/run-0.tar")

	started := make(chan struct{})
	inspector := newStubStage("inspector")
	validator := newStubStage("validator")
	validator.executeHook = func(ctx context.Context, _ *queue.Item) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop(), workflow.WithPollInterval(10*time.Millisecond))
	mgr.ConfigureStages(workflow.StageSet{Inspector: inspector, Validator: validator})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(30 * time.Second):
		t.Fatal("validator never started")
	}
	mgr.Stop()

	got, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusInspected {
		t.Fatalf("expected interrupted item rolled back to inspected, got %s", got.Status)
	}
}

func TestStartResetsStuckItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.Enqueue(t, store, "run-0", "/data/run-0.tar")
	item.Status = queue.StatusInspecting
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	inspector := newStubStage("inspector")
	validator := newStubStage("validator")
	mgr := startManager(t, cfg, store, workflow.StageSet{Inspector: inspector, Validator: validator})
	waitIdle(t, mgr)

	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusValidated {
		t.Fatalf("expected reset item to be processed, got %s", got.Status)
	}
}

func TestStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without stages")
	}
}

func TestStatusReportsHealthAndWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2, 1))
	store := testsupport.MustOpenStore(t, cfg)

	inspector := newStubStage("inspector")
	validator := newStubStage("validator")
	validator.health = stage.Unhealthy("validator", "staging missing")
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Inspector: inspector, Validator: validator})

	summary := mgr.Status(context.Background())
	if summary.Running {
		t.Fatal("expected manager not running")
	}
	if summary.LaneWorkers["validation"] != 2 {
		t.Fatalf("expected 2 validation workers, got %v", summary.LaneWorkers)
	}
	if _, ok := summary.LaneWorkers["tool"]; ok {
		t.Fatal("tool lane should not be registered without a hand-off stage")
	}
	if h := summary.StageHealth["validator"]; h.Ready {
		t.Fatalf("expected unhealthy validator, got %#v", h)
	}
}

func TestWaitIdleHonorsContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.Enqueue(t, store, "run-0", "/data/run-0.tar")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Inspector: newStubStage("inspector")})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := mgr.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while item pending, got %v", err)
	}
}
