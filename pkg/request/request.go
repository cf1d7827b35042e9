package request

import (
	"bytes"
	"errors"
	"io"
)

const (
	// ReadChunkSize is the size of each read from the connection.
	ReadChunkSize = 4096

	// DefaultMaxLineBytes caps how much is buffered while waiting for CRLF.
	DefaultMaxLineBytes = 64 << 10

	// MethodGet is the only method served.
	MethodGet = "GET"

	prefix     = "GET /"
	terminator = "\r\n"
)

var (
	// ErrEmptyPath means the request carried no actionable "GET /" line.
	ErrEmptyPath = errors.New("request: empty path")

	// ErrBadPath means the path token is malformed.
	ErrBadPath = errors.New("request: bad path")

	// ErrUnknown means the request could not be read.
	ErrUnknown = errors.New("request: unknown error")
)

// Options configures Parse.
type Options struct {
	// MaxLineBytes bounds the buffered request. Zero means DefaultMaxLineBytes,
	// a negative value means unlimited.
	MaxLineBytes int
}

func (o Options) maxLine() int {
	switch {
	case o.MaxLineBytes == 0:
		return DefaultMaxLineBytes
	case o.MaxLineBytes < 0:
		return 0
	default:
		return o.MaxLineBytes
	}
}

// Line is the parsed first line of a request.
type Line struct {
	// Method is always MethodGet.
	Method string

	// Path is the requested resource relative to the document root,
	// without the leading slash. Empty for the site root.
	Path string
}

// IsRoot reports whether the request targets the site root.
func (l *Line) IsRoot() bool {
	return l.Path == ""
}

// Parse reads r until the buffered bytes end in CRLF or r reports an error,
// then parses the first line. It returns nil, nil when nothing was read.
func Parse(r io.Reader, opts Options) (*Line, error) {
	buf, err := ReadLine(r, opts.maxLine())
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, nil
	}
	return ParseLine(buf)
}

// ReadLine accumulates bytes from r until the buffer ends in CRLF.
// Any read error, io.EOF included, ends the input; whatever was buffered is
// returned. A non-zero max bounds the buffer and yields ErrUnknown when hit.
func ReadLine(r io.Reader, max int) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, ReadChunkSize)

	for {
		n, err := r.Read(chunk)
		for i := 0; i < n; i++ {
			buf = append(buf, chunk[i])
			if terminated(buf) {
				return buf, nil
			}
			if max > 0 && len(buf) >= max {
				return nil, ErrUnknown
			}
		}
		if err != nil {
			return buf, nil
		}
	}
}

func terminated(buf []byte) bool {
	n := len(buf)
	return n >= 2 && buf[n-2] == terminator[0] && buf[n-1] == terminator[1]
}

// ParseLine extracts the resource path from a raw request.
// Only the text before the first newline is inspected.
func ParseLine(raw []byte) (*Line, error) {
	first := raw
	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	first = bytes.TrimSuffix(first, []byte("\r"))

	if !bytes.HasPrefix(first, []byte(prefix)) {
		return nil, ErrEmptyPath
	}
	rest := first[len(prefix):]

	// "GET / ..." or a bare "GET /" is the site root.
	if len(rest) == 0 || rest[0] == ' ' {
		return &Line{Method: MethodGet}, nil
	}

	token := rest
	if i := bytes.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	if !validToken(token) {
		return nil, ErrBadPath
	}

	return &Line{Method: MethodGet, Path: string(token)}, nil
}

// validToken rejects tokens that would not be a relative path or that carry
// control bytes.
func validToken(token []byte) bool {
	if len(token) == 0 || token[0] == '/' {
		return false
	}
	for _, c := range token {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
