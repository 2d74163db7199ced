package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build metadata must not be empty: version=%q commit=%q date=%q", v, c, d)
	}

	if GetVersion() != v || GetCommit() != c || GetDate() != d {
		t.Fatal("accessors must match Info")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Fatalf("String() must contain %q, got %s", part, s)
		}
	}
}
