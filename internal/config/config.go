package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/docroot/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "docroot.json"

	// DefaultPort is the default listening port.
	DefaultPort = 8080

	// DefaultWorkers is the default number of worker slots.
	DefaultWorkers = 4

	// DefaultRoot is the default document root, relative to the config file.
	DefaultRoot = "root"

	// DefaultLogFormat is the default log output format.
	DefaultLogFormat = "text"

	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"
)

// Config represents the complete docroot.json configuration.
type Config struct {
	// Root is the document root. Relative paths resolve against the
	// directory holding the config file.
	Root string `json:"root,omitempty"`

	// Port is the listening port.
	Port int `json:"port,omitempty"`

	// BindAddress is the interface to bind. Empty means all interfaces.
	BindAddress string `json:"bindAddress,omitempty"`

	// Workers is the number of worker slots. Fewer than two serves every
	// connection on the accepting goroutine.
	Workers int `json:"workers"`

	// Silent suppresses per-connection logging.
	Silent bool `json:"silent,omitempty"`

	// Interpreter configures script delegation.
	Interpreter InterpreterConfig `json:"interpreter,omitempty"`

	// Handler tunes request handling.
	Handler HandlerConfig `json:"handler,omitempty"`

	// Admin configures the admin HTTP listener.
	Admin AdminConfig `json:"admin,omitempty"`

	// Log configures log output.
	Log LogConfig `json:"log,omitempty"`

	// Mirror configures the S3 source used by "docroot sync".
	Mirror MirrorConfig `json:"mirror,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// InterpreterConfig locates the script interpreter. Both fields must be set
// for delegation to be enabled.
type InterpreterConfig struct {
	// Binary is the interpreter file name (e.g., "php-cgi").
	Binary string `json:"binary,omitempty"`

	// Dir is the directory holding Binary.
	Dir string `json:"dir,omitempty"`
}

// HandlerConfig contains per-connection handling settings.
type HandlerConfig struct {
	// TriggerExtension selects delegation (default: "php").
	TriggerExtension string `json:"triggerExtension,omitempty"`

	// IndexScript is delegated for root requests (default: "index.php").
	IndexScript string `json:"indexScript,omitempty"`

	// IndexFiles are streamed for root requests, first existing wins.
	IndexFiles []string `json:"indexFiles,omitempty"`

	// ChunkSize is the static body chunk size in bytes (default: 4096).
	ChunkSize int `json:"chunkSize,omitempty"`

	// MaxLineBytes bounds the request line (default: 65536, negative: unlimited).
	MaxLineBytes int `json:"maxLineBytes,omitempty"`

	// ReadTimeout is a read deadline for each connection (e.g., "30s").
	// Empty means no deadline.
	ReadTimeout string `json:"readTimeout,omitempty"`
}

// AdminConfig contains admin listener settings.
type AdminConfig struct {
	// Address is the admin listen address (e.g., "127.0.0.1:9090").
	// Empty disables the admin listener.
	Address string `json:"address,omitempty"`
}

// LogConfig contains log output settings.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `json:"format,omitempty"`

	// Level is "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty"`
}

// MirrorConfig locates the bucket mirrored into the document root.
type MirrorConfig struct {
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Root:    DefaultRoot,
		Port:    DefaultPort,
		Workers: DefaultWorkers,
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for docroot.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E121").
				WithDetail("No docroot.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'docroot init' to write a default docroot.json")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse docroot.json: " + err.Error()).
			WithSuggestion("Check that docroot.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Interpreter.Dir = trimTrailingSlash(c.Interpreter.Dir)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("got %d", c.Port))
	}
	if c.Workers < 0 {
		return errors.New("E123").
			WithDetail(fmt.Sprintf("got %d", c.Workers))
	}
	if (c.Interpreter.Binary == "") != (c.Interpreter.Dir == "") {
		return errors.New("E124").
			WithSuggestion(`Set both "interpreter.binary" and "interpreter.dir", or neither`)
	}
	if _, err := c.ReadTimeout(); err != nil {
		return errors.New("E120").
			WithDetail("Invalid handler.readTimeout: " + err.Error())
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return errors.New("E120").WithDetail(err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E120").
			WithDetail(fmt.Sprintf("Invalid log.format %q", c.Log.Format)).
			WithSuggestion(`Use "text" or "json"`)
	}
	return nil
}

// RootPath returns the document root without a trailing slash. Relative
// roots resolve against the config file directory.
func (c *Config) RootPath() string {
	path := c.Root
	if path == "" {
		path = DefaultRoot
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.Dir(), path)
	}
	return trimTrailingSlash(path)
}

// InterpreterDir returns the interpreter directory without a trailing slash.
func (c *Config) InterpreterDir() string {
	return trimTrailingSlash(c.Interpreter.Dir)
}

// HasInterpreter reports whether delegation is configured.
func (c *Config) HasInterpreter() bool {
	return c.Interpreter.Binary != "" && c.Interpreter.Dir != ""
}

// ReadTimeout parses Handler.ReadTimeout. Empty means zero.
func (c *Config) ReadTimeout() (time.Duration, error) {
	if c.Handler.ReadTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Handler.ReadTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// trimTrailingSlash drops one trailing "/" unless path is "/" itself.
func trimTrailingSlash(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing docroot.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E121").
				WithDetail("No docroot.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'docroot init' to write a default docroot.json")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
