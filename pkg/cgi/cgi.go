package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/vango-dev/docroot/pkg/static"
)

// Header is written to the connection before the interpreter starts.
const Header = "HTTP/1.1 200 OK\nConnection: close\n\n"

// maxStderr bounds how much interpreter stderr is kept for logging.
const maxStderr = 4096

var (
	// ErrNotConfigured means no interpreter binary or directory is set.
	ErrNotConfigured = errors.New("cgi: interpreter not configured")

	// ErrInvocation means the interpreter could not be started.
	ErrInvocation = errors.New("cgi: invocation failed")

	// ErrExit means the interpreter ran but exited unsuccessfully.
	ErrExit = errors.New("cgi: interpreter exited with error")
)

// Interpreter locates the script interpreter binary.
type Interpreter struct {
	// Binary is the interpreter file name, e.g. "php-cgi".
	Binary string

	// Dir is the directory holding Binary, without a trailing slash.
	Dir string

	// Logger receives interpreter stderr and exit failures.
	Logger *slog.Logger
}

// NewInterpreter returns an Interpreter for binary in dir.
// A trailing '/' on dir is removed.
func NewInterpreter(binary, dir string) *Interpreter {
	return &Interpreter{
		Binary: binary,
		Dir:    strings.TrimSuffix(dir, "/"),
	}
}

// Configured reports whether both the binary and the directory are set.
func (i *Interpreter) Configured() bool {
	return i != nil && i.Binary != "" && i.Dir != ""
}

// Path returns the full interpreter path, Dir + "/" + Binary.
func (i *Interpreter) Path() string {
	return i.Dir + "/" + i.Binary
}

// Available reports whether the interpreter is configured and its binary
// exists on disk.
func (i *Interpreter) Available() bool {
	return i.Configured() && static.FileExists(i.Path())
}

func (i *Interpreter) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default().With("component", "cgi")
}

// Env returns the environment passed to the interpreter for script.
func Env(script string) []string {
	return []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SCRIPT_FILENAME=" + script,
		"QUERY_STRING=",
		"REDIRECT_STATUS=true",
		"REQUEST_METHOD=GET",
		"SERVER_PROTOCOL=HTTP/1.1",
		"REMOTE_HOST=127.0.0.1",
	}
}

// fileConn is implemented by sockets that can expose their descriptor,
// such as *net.TCPConn and *net.UnixConn.
type fileConn interface {
	File() (*os.File, error)
}

// Delegate writes the delegation header to conn, runs the interpreter for
// script with stdout bound to conn and waits for it to exit.
//
// The interpreter gets no arguments; the script is named only by
// SCRIPT_FILENAME. When conn exposes its socket descriptor the child writes to
// the socket directly, otherwise output is copied through a pipe. The caller
// owns conn and closes it afterwards.
func (i *Interpreter) Delegate(ctx context.Context, conn io.Writer, script string) error {
	if !i.Configured() {
		return ErrNotConfigured
	}

	if _, err := io.WriteString(conn, Header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvocation, err)
	}

	cmd := exec.CommandContext(ctx, i.Path())
	cmd.Env = Env(script)
	configureProcess(cmd)

	stdout := conn
	if fc, ok := conn.(fileConn); ok {
		if f, err := fc.File(); err == nil {
			defer f.Close()
			stdout = f
		}
	}
	cmd.Stdout = stdout

	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvocation, err)
	}

	err := cmd.Wait()
	if out := strings.TrimSpace(stderr.String()); out != "" {
		i.logger().Warn("interpreter stderr", "script", script, "stderr", out)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExit, err)
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
