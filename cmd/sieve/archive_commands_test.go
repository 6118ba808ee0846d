package main

import (
	"os"
	"path/filepath"
	"testing"

	"sieve/internal/testsupport"
)

func TestInspectCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "run.tar.gz")
	testsupport.BuildRunArchive(t, path, testsupport.RunOptions{Prefix: "r64012_20200101/1_A01/"})

	out, _, err := runCLI(t, []string{"inspect", path}, env.configPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Run ID:  m64012_200101_000000")
	requireContains(t, out, "Depth:   2")
	requireContains(t, out, "manifest")
	requireContains(t, out, "bulk")
}

func TestVerifyCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	good := filepath.Join(env.baseDir, "good.tar.gz")
	testsupport.BuildRunArchive(t, good, testsupport.RunOptions{})
	publish := filepath.Join(env.baseDir, "published")
	out, _, err := runCLI(t, []string{"verify", good, "--publish", publish}, env.configPath)
	if err != nil {
		t.Fatalf("verify good: %v", err)
	}
	requireContains(t, out, "Validated m64012_200101_000000")
	requireContains(t, out, "Published 4 metadata files")
	if _, err := os.Stat(filepath.Join(publish, "m64012_200101_000000.sts.xml")); err != nil {
		t.Fatalf("expected published stats xml: %v", err)
	}

	bad := filepath.Join(env.baseDir, "bad.tar.gz")
	testsupport.BuildRunArchive(t, bad, testsupport.RunOptions{AssayID: "m64012_200102_000000", Corrupt: []string{"m64012_200102_000000.metadata.xml"}})
	out, _, err = runCLI(t, []string{"verify", bad}, env.configPath)
	if err == nil {
		t.Fatal("expected verify failure for corrupt archive")
	}
	requireContains(t, out, "Failed")
}
