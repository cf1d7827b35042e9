// Package mediatype maps file extensions to response content types.
//
// The table is an ordered, immutable list scanned linearly. When an extension
// appears more than once the first entry wins, so "zip" always resolves to
// image/zip and the later application/octet-stream mapping is never returned.
package mediatype

// Entry is one row of the media type table.
type Entry struct {
	// Extension is the file extension without the leading dot.
	Extension string

	// ContentType is the value sent in the Content-Type header.
	ContentType string

	// Binary reports whether the content is binary.
	Binary bool
}

// Default is returned when a path has no extension or an unknown one.
var Default = Entry{Extension: "", ContentType: "text/plain", Binary: false}

var table = []Entry{
	{"txt", "text/plain", false},
	{"htm", "text/html", false},
	{"html", "text/html", false},
	{"php", "text/html", false},
	{"gif", "image/gif", true},
	{"jpg", "image/jpg", true},
	{"jpeg", "image/jpeg", true},
	{"png", "image/png", true},
	{"pnga", "image/pnga", true},
	{"ico", "image/ico", true},
	{"bmp", "image/bmp", true},
	{"gz", "image/gz", true},
	{"tar", "image/tar", true},
	{"zip", "image/zip", true},
	{"pdf", "application/pdf", true},
	{"zip", "application/octet-stream", true},
	{"rar", "application/octet-stream", true},
}

// Table returns a copy of the media type table in lookup order.
func Table() []Entry {
	out := make([]Entry, len(table))
	copy(out, table)
	return out
}

// Resolve returns the table entry for the extension of path.
// The extension is the text after the last '.', matched case-sensitively.
// Resolve never fails: unmatched paths get Default.
func Resolve(path string) Entry {
	ext, ok := Extension(path)
	if !ok {
		return Default
	}
	for _, e := range table {
		if e.Extension == ext {
			return e
		}
	}
	return Default
}

// Extension returns the text after the last '.' in path.
// A dot in the first position does not count, matching the resolver's
// right-to-left scan which stops before index 0.
func Extension(path string) (string, bool) {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '.' {
			return path[i+1:], true
		}
	}
	return "", false
}
