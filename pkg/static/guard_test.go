package static

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsSafe(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		rel  string
		want bool
	}{
		{"index.html", true},
		{"sub", true},
		{"sub/a.txt", true},
		{"sub/missing.txt", false},
		{"missing", false},
		{"", false},
		{".", false},
		{"./index.html", false},
		{".hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := IsSafe(root, tt.rel); got != tt.want {
				t.Errorf("IsSafe(root, %q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestIsSafe_RejectsLeadingDotForEveryRoot(t *testing.T) {
	// The leading '.' check happens before any filesystem access, so the
	// secret next to root is never consulted.
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, r := range []string{root, "/", "", "/nonexistent"} {
		for _, p := range []string{"../secret", "..", ".git", ""} {
			if IsSafe(r, p) {
				t.Errorf("IsSafe(%q, %q) = true, want false", r, p)
			}
		}
	}
}

func TestIsSafe_InnerTraversalIsNotBlocked(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Only the first byte is checked; deeper ".." segments resolve normally.
	if !IsSafe(root, "a/../b.txt") {
		t.Error("IsSafe(a/../b.txt) = false, want true")
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if !FileExists(file) || FileExists(dir) || FileExists(filepath.Join(dir, "nope")) {
		t.Error("FileExists returned wrong results")
	}
	if !DirExists(dir) || DirExists(file) || DirExists(filepath.Join(dir, "nope")) {
		t.Error("DirExists returned wrong results")
	}
}

func TestJoin(t *testing.T) {
	if got := Join("/srv/www", "a/b.html"); got != "/srv/www/a/b.html" {
		t.Errorf("Join() = %q", got)
	}
}
