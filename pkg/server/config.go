package server

import (
	"fmt"

	docerrors "github.com/vango-dev/docroot/internal/errors"
)

// ServerConfig holds the listener and dispatch settings.
// It must not change after Listen succeeds.
type ServerConfig struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	// Default: 8080.
	Port int

	// BindAddress is the interface to bind. Empty means all interfaces.
	BindAddress string

	// Workers is the number of worker slots. Fewer than two disables the
	// pool and serves every connection synchronously.
	// Default: 4.
	Workers int

	// Silent suppresses per-connection logging.
	Silent bool
}

// DefaultServerConfig returns a ServerConfig with the default port and worker count.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    8080,
		Workers: 4,
	}
}

// Clone returns a copy of the config.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ValidateConfig checks the port and worker count.
func (c *ServerConfig) ValidateConfig() error {
	if c.Port < 0 || c.Port > 65535 {
		return docerrors.New("E122").WithDetail(fmt.Sprintf("got %d", c.Port))
	}
	if c.Workers < 0 {
		return docerrors.New("E123").WithDetail(fmt.Sprintf("got %d", c.Workers))
	}
	return nil
}

// pooled reports whether connections go through worker slots.
func (c *ServerConfig) pooled() bool {
	return c.Workers >= 2
}
