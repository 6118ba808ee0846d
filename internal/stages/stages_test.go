package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/services"
	"sieve/internal/services/tool"
	"sieve/internal/stages"
	"sieve/internal/testsupport"
)

func inspectAndValidate(t *testing.T, opts testsupport.RunOptions, cfgOpts ...testsupport.ConfigOption) (*queue.Store, queue.Item, error) {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	store := testsupport.MustOpenStore(t, cfg)
	fixture := testsupport.BuildRunArchive(t, filepath.Join(testsupport.BaseDir(cfg), "in", "run-1.tar.gz"), opts)
	item := testsupport.Enqueue(t, store, "run-1", fixture.Path)

	ctx := context.Background()
	inspected, err := stages.NewInspector(cfg, logging.NewNop()).Execute(ctx, *item)
	if err != nil {
		t.Fatalf("inspector Execute: %v", err)
	}
	if inspected.AssayID != fixture.AssayID || inspected.ArchiveJSON == "" {
		t.Fatalf("inspector did not record handle: %#v", inspected)
	}

	validator, err := stages.NewValidator(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	validated, err := validator.Execute(ctx, inspected)
	return store, validated, err
}

func TestValidatorPublishesMetadataAndRecordsHandoff(t *testing.T) {
	store, item, err := inspectAndValidate(t, testsupport.RunOptions{},
		testsupport.WithToolScript("exit 0"))
	if err != nil {
		t.Fatalf("validator Execute: %v", err)
	}

	handoff, err := item.Handoff()
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if handoff.RunID != "run-1" || filepath.Base(handoff.Archive) != "run-1.tar.gz" {
		t.Fatalf("unexpected hand-off %#v", handoff)
	}
	if len(handoff.BulkMembers) != 3 {
		t.Fatalf("expected 3 bulk members, got %v", handoff.BulkMembers)
	}
	if item.ToolStatus != queue.ToolQueued {
		t.Fatalf("expected tool queued, got %q", item.ToolStatus)
	}

	entries, err := os.ReadDir(handoff.MetadataDir)
	if err != nil {
		t.Fatalf("read metadata dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	want := []string{
		"m64012_200101_000000.md5",
		"m64012_200101_000000.metadata.xml",
		"m64012_200101_000000.run.metadata.xml",
		"m64012_200101_000000.sts.xml",
	}
	if len(names) != len(want) {
		t.Fatalf("published %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("published %v, want %v", names, want)
		}
	}

	records, err := store.Records(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}
	for _, record := range records {
		if record.Outcome != "passed" {
			t.Fatalf("expected all records passed, got %#v", record)
		}
	}
}

func TestValidatorWithoutToolLeavesToolStatusEmpty(t *testing.T) {
	_, item, err := inspectAndValidate(t, testsupport.RunOptions{})
	if err != nil {
		t.Fatalf("validator Execute: %v", err)
	}
	if item.ToolStatus != queue.ToolNone {
		t.Fatalf("expected no tool status, got %q", item.ToolStatus)
	}
}

func TestValidatorReportsChecksumMismatch(t *testing.T) {
	corrupt := "m64012_200101_000000.subreads.bam"
	store, item, err := inspectAndValidate(t, testsupport.RunOptions{Corrupt: []string{corrupt}})
	if !errors.Is(err, services.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	members := services.Members(err)
	if len(members) != 1 || members[0] != corrupt {
		t.Fatalf("expected failing member %s, got %v", corrupt, members)
	}
	if item.HandoffJSON != "" {
		t.Fatal("failed item must not carry a hand-off")
	}
	records, err := store.Records(context.Background(), item.ID)
	if err != nil || len(records) != 6 {
		t.Fatalf("expected 6 persisted records, got %d err=%v", len(records), err)
	}
}

func TestInspectorRejectsRemoteLocation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := queue.Item{ID: 1, RunID: "r", SourcePath: "https://example.org/r.tar.gz"}
	_, err := stages.NewInspector(cfg, logging.NewNop()).Execute(context.Background(), item)
	if !errors.Is(err, services.ErrUnreadableArchive) {
		t.Fatalf("expected unreadable archive, got %v", err)
	}
}

type stubInvoker struct {
	requests []tool.Request
	err      error
}

func (s *stubInvoker) Invoke(ctx context.Context, req tool.Request, onOutput func(string)) error {
	s.requests = append(s.requests, req)
	onOutput("processing")
	return s.err
}

func TestHandoffInvokesToolWithRecordedHandoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.Enqueue(t, store, "run-1", "/data/run-1.tar.gz")
	withHandoff, err := item.WithHandoff(queue.Handoff{
		RunID:       "run-1",
		Archive:     "/data/run-1.tar.gz",
		BulkMembers: []string{"a.subreads.bam"},
		MetadataDir: "/out/run-1/metadata",
	})
	if err != nil {
		t.Fatal(err)
	}

	invoker := &stubInvoker{}
	handler := stages.NewHandoffWithInvoker(store, invoker, "sh", logging.NewNop())
	done, err := handler.Execute(context.Background(), withHandoff)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.ToolStatus != queue.ToolSucceeded {
		t.Fatalf("expected succeeded tool status, got %q", done.ToolStatus)
	}
	if len(invoker.requests) != 1 || invoker.requests[0].BulkMembers[0] != "a.subreads.bam" {
		t.Fatalf("unexpected requests %#v", invoker.requests)
	}

	invoker.err = services.Wrap(services.ErrExternalTool, "tool", "invoke", "exit 2", nil)
	failed, err := handler.Execute(context.Background(), withHandoff)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if failed.ToolStatus != queue.ToolRunning {
		t.Fatalf("expected running tool status on failure, got %q", failed.ToolStatus)
	}
}

func TestHandoffWithoutHandoffFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.Enqueue(t, store, "run-1", "/data/run-1.tar.gz")
	handler := stages.NewHandoffWithInvoker(store, &stubInvoker{}, "sh", logging.NewNop())
	if _, err := handler.Execute(context.Background(), *item); err == nil {
		t.Fatal("expected error without hand-off")
	}
}
