package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sieve/internal/queue"
	"sieve/internal/testsupport"
)

func buildBatch(t *testing.T, env *cliTestEnv, corrupt int, total int) string {
	t.Helper()
	var locations []string
	for i := 0; i < total; i++ {
		opts := testsupport.RunOptions{BulkSize: 32 * 1024}
		if i == corrupt {
			opts.Corrupt = []string{"m64012_200101_000000.subreads.bam"}
		}
		path := filepath.Join(env.baseDir, "in", fmt.Sprintf("run-%d.tar.gz", i))
		testsupport.BuildRunArchive(t, path, opts)
		locations = append(locations, path)
	}
	listPath := filepath.Join(env.baseDir, "in", "list.txt")
	testsupport.WriteInputList(t, listPath, locations...)
	return listPath
}

func TestRunProcessesInputListAndIsolatesFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithToolScript(`echo "$1" >> "$(dirname "$0")/calls.log"`, "{run_id}"))
	listPath := buildBatch(t, env, 1, 3)

	out, _, err := runCLI(t, []string{"run", listPath}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "2 succeeded, 1 failed, 3 total")
	requireContains(t, out, "checksum_mismatch")
	requireContains(t, out, "run-1")

	calls, err := os.ReadFile(filepath.Join(filepath.Dir(env.cfg.Tool.Command), "calls.log"))
	if err != nil {
		t.Fatalf("read tool calls: %v", err)
	}
	lines := strings.Fields(string(calls))
	if len(lines) != 2 {
		t.Fatalf("expected 2 tool invocations, got %v", lines)
	}
	for _, runID := range lines {
		if runID == "run-1" {
			t.Fatal("failed archive was handed to the tool")
		}
	}

	failed, err := env.store.List(context.Background(), queue.StatusFailed)
	if err != nil || len(failed) != 1 || failed[0].RunID != "run-1" {
		t.Fatalf("expected run-1 failed, got %v err=%v", failed, err)
	}
	for _, runID := range []string{"run-0", "run-2"} {
		metadata := filepath.Join(env.cfg.Paths.OutputDir, runID, "metadata")
		if _, err := os.Stat(filepath.Join(metadata, "m64012_200101_000000.run.metadata.xml")); err != nil {
			t.Fatalf("expected normalized descriptor for %s: %v", runID, err)
		}
	}
}

func TestRunFailOnError(t *testing.T) {
	env := setupCLITestEnv(t)
	listPath := buildBatch(t, env, 0, 2)

	out, _, err := runCLI(t, []string{"run", "--fail-on-error", listPath}, env.configPath)
	if err == nil {
		t.Fatal("expected error when an item fails")
	}
	requireContains(t, err.Error(), "1 item(s) failed")
	requireContains(t, out, "1 succeeded, 1 failed, 2 total")

	validated, err := env.store.List(context.Background(), queue.StatusValidated)
	if err != nil || len(validated) != 1 {
		t.Fatalf("expected one item left validated without a tool, got %d err=%v", len(validated), err)
	}
}

func TestRunRejectsUnreadableInputList(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", filepath.Join(env.baseDir, "missing.txt")}, env.configPath)
	if err == nil {
		t.Fatal("expected configuration error for a missing list")
	}
	count, countErr := env.store.Count(context.Background(), queue.AllStatuses()...)
	if countErr != nil || count != 0 {
		t.Fatalf("expected no items created, got %d err=%v", count, countErr)
	}
}

func TestEnqueueSkipsKnownSources(t *testing.T) {
	env := setupCLITestEnv(t)
	listPath := filepath.Join(env.baseDir, "list.txt")
	testsupport.WriteInputList(t, listPath, "/data/a.tar.gz", "/data/b.tar.gz")

	out, _, err := runCLI(t, []string{"enqueue", listPath}, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Enqueued 2 items (0 already queued)")

	out, _, err = runCLI(t, []string{"enqueue", listPath}, env.configPath)
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	requireContains(t, out, "Enqueued 0 items (2 already queued)")
}
