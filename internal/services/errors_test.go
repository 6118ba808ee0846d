package services_test

import (
	"errors"
	"strings"
	"testing"

	"sieve/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "handoff", "run", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"handoff", "run", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.ErrorKind
	}{
		{"mismatch", services.Wrap(services.ErrChecksumMismatch, "validator", "compare", "", nil), services.KindChecksumMismatch},
		{"missing", services.Wrap(services.ErrRequiredFileMissing, "validator", "required", "", nil), services.KindRequiredFileMissing},
		{"empty", services.Wrap(services.ErrEmptyArchive, "inspector", "list", "", nil), services.KindEmptyArchive},
		{"plain", errors.New("io"), services.KindTransient},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestWithMembersPreservesMarker(t *testing.T) {
	err := services.WithMembers(
		services.Wrap(services.ErrChecksumMismatch, "validator", "compare", "digest differs", nil),
		"a.sts.xml", "b.subreads.bam",
	)
	if !errors.Is(err, services.ErrChecksumMismatch) {
		t.Fatalf("expected marker through MemberError, got %v", err)
	}
	members := services.Members(err)
	if len(members) != 2 || members[0] != "a.sts.xml" {
		t.Fatalf("unexpected members: %v", members)
	}
	details := services.Details(err)
	if details.Kind != services.KindChecksumMismatch {
		t.Fatalf("unexpected kind: %s", details.Kind)
	}
	if !strings.Contains(details.Message, "b.subreads.bam") {
		t.Fatalf("expected member names in message, got %q", details.Message)
	}
	if services.WithMembers(nil, "x") != nil {
		t.Fatal("expected nil error to stay nil")
	}
}
