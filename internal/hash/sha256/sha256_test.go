package sha256

import (
	"strings"
	"testing"
)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	streamed, err := h.HashReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if streamed != got {
		t.Fatalf("expected stream digest %s, got %s", got, streamed)
	}
}

func TestDigestSeparatesParts(t *testing.T) {
	t.Parallel()

	h := New()
	if h.Digest("ab", "c") == h.Digest("a", "bc") {
		t.Fatal("expected part boundaries to change the digest")
	}
	if h.Digest("https://v.douyin.com/x", "title") != h.Digest("https://v.douyin.com/x", "title") {
		t.Fatal("expected deterministic digest")
	}
}
