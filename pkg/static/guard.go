package static

import (
	"os"
)

// Join returns root + "/" + rel without cleaning either part.
func Join(root, rel string) string {
	return root + "/" + rel
}

// IsSafe reports whether rel may be served from root.
// It rejects "" and any path starting with '.', and accepts only when the
// joined path currently exists as a regular file or a directory.
func IsSafe(root, rel string) bool {
	if rel == "" {
		return false
	}
	if rel[0] == '.' {
		return false
	}

	full := Join(root, rel)
	if FileExists(full) {
		return true
	}
	return DirExists(full)
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
