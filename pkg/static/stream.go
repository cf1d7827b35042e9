package static

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/vango-dev/docroot/pkg/mediatype"
)

// DefaultChunkSize is the body chunk size used when Options.ChunkSize is zero.
const DefaultChunkSize = 4096

// NotFoundBody is the fixed body sent for missing or rejected resources.
const NotFoundBody = "404 doesnt exist:)"

var (
	// ErrOpen means the file could not be opened. Nothing was written.
	ErrOpen = errors.New("static: open failed")

	// ErrStat means the file size could not be determined or the path is not
	// a regular file. Nothing was written.
	ErrStat = errors.New("static: stat failed")

	// ErrTruncated means the response was cut short after the header was sent.
	ErrTruncated = errors.New("static: response truncated")
)

// Options configures Stream.
type Options struct {
	// ChunkSize is the maximum number of body bytes per write.
	ChunkSize int
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// Header returns the response header for a body of size bytes.
func Header(size int64, contentType string) string {
	return "HTTP/1.1 200 OK\nContent-length: " + strconv.FormatInt(size, 10) +
		"\nContent-Type: " + contentType + "\n\n"
}

// NotFound writes the fixed not-found response. The status line is 200.
func NotFound(w io.Writer) error {
	_, err := io.WriteString(w, Header(int64(len(NotFoundBody)), mediatype.Default.ContentType)+NotFoundBody)
	return err
}

// Stream writes filePath to w as a complete response and returns the number
// of body bytes sent.
//
// The header goes out in a single write. The body follows in writes of at
// most ChunkSize bytes, each carrying exactly the bytes read from the file.
// Open and stat failures return before anything is written.
func Stream(w io.Writer, filePath string, opts Options) (int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStat, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", ErrStat, filePath)
	}
	size := info.Size()

	mt := mediatype.Resolve(filePath)
	if _, err := io.WriteString(w, Header(size, mt.ContentType)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	buf := make([]byte, opts.chunkSize())
	var sent int64
	for sent < size {
		k := int64(len(buf))
		if remaining := size - sent; remaining < k {
			k = remaining
		}

		n, rerr := f.Read(buf[:k])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return sent, fmt.Errorf("%w: %v", ErrTruncated, werr)
			}
			sent += int64(n)
		}
		if rerr != nil {
			if sent < size {
				return sent, fmt.Errorf("%w: %v", ErrTruncated, rerr)
			}
			break
		}
	}

	return sent, nil
}
