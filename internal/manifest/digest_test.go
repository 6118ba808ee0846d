package manifest

import (
	"strings"
	"testing"
)

func TestEmptyInputDigests(t *testing.T) {
	tests := []struct {
		algo Algorithm
		want string
	}{
		{MD5, "d41d8cd98f00b204e9800998ecf8427e"},
		{SHA1, "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{BLAKE3, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			h, err := tt.algo.New()
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, n, err := Sum(h, strings.NewReader(""), nil)
			if err != nil {
				t.Fatalf("Sum: %v", err)
			}
			if n != 0 || got != tt.want {
				t.Fatalf("Sum = %s (%d bytes), want %s", got, n, tt.want)
			}
		})
	}
}

func TestAutoResolvesByLength(t *testing.T) {
	tests := []struct {
		digest string
		want   Algorithm
	}{
		{strings.Repeat("a", 32), MD5},
		{strings.Repeat("b", 40), SHA1},
		{strings.Repeat("C", 64), SHA256},
	}
	for _, tt := range tests {
		got, err := Auto.Resolve(tt.digest)
		if err != nil || got != tt.want {
			t.Fatalf("Resolve(%d chars) = %s, %v; want %s", len(tt.digest), got, err, tt.want)
		}
	}
	if _, err := Auto.Resolve("abc"); err == nil {
		t.Fatal("expected error for unknown digest length")
	}
	if got, _ := SHA1.Resolve(strings.Repeat("a", 32)); got != SHA1 {
		t.Fatalf("explicit algorithm should not be inferred, got %s", got)
	}
}

func TestParseAlgorithm(t *testing.T) {
	if got, err := ParseAlgorithm(""); err != nil || got != MD5 {
		t.Fatalf("empty algorithm = %s, %v; want md5", got, err)
	}
	if got, err := ParseAlgorithm(" BLAKE3 "); err != nil || got != BLAKE3 {
		t.Fatalf("blake3 = %s, %v", got, err)
	}
	if _, err := ParseAlgorithm("crc32"); err == nil {
		t.Fatal("expected error for crc32")
	}
}

func TestDigestsEqual(t *testing.T) {
	if !DigestsEqual("D41D8CD98F00B204E9800998ECF8427E", " d41d8cd98f00b204e9800998ecf8427e") {
		t.Fatal("expected case-insensitive match")
	}
	if DigestsEqual("", "") {
		t.Fatal("empty digests must not match")
	}
}

func TestSumAllAutoMatchesAnyLength(t *testing.T) {
	set, n, err := SumAll(Auto, strings.NewReader("abc"), make([]byte, 2))
	if err != nil {
		t.Fatalf("SumAll: %v", err)
	}
	if n != 3 || len(set) != 3 {
		t.Fatalf("n=%d set=%v", n, set)
	}
	if _, ok := set.Match(Auto, "900150983CD24FB0D6963F7D28E17F72"); !ok {
		t.Fatal("expected md5 match")
	}
	if _, ok := set.Match(Auto, "a9993e364706816aba3e25717850c26c9cd0d89d"); !ok {
		t.Fatal("expected sha1 match")
	}
	if _, ok := set.Match(Auto, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"); !ok {
		t.Fatal("expected sha256 match")
	}
	if computed, ok := set.Match(MD5, "00000000000000000000000000000000"); ok || computed != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected match result %q %v", computed, ok)
	}
}
