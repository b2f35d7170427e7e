package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "./spawnme.log"

// Service owns the log sinks. Apply swaps level and sinks in place so that
// every Logger handed out earlier follows the new config.
type Service struct {
	console io.Writer

	mu   sync.Mutex
	file *os.File

	root atomic.Pointer[zerolog.Logger]
}

// New builds the service from cfg. Console output goes to stderr; stdout is
// reserved for command output.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{console: os.Stderr}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() *zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return zl
	}
	return &disabled
}

// Apply is safe to call concurrently with logging. A log file that cannot be
// opened is reported through the new logger and skipped.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl, _ := parseLevel(cfg.Level)
	var (
		writers []io.Writer
		openErr error
	)
	if cfg.Console {
		writers = append(writers, s.consoleWriter())
	}

	old := s.file
	s.file = nil
	if cfg.File.Enabled {
		f, err := openLogFile(cfg.File.Path)
		if err != nil {
			openErr = err
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		// No usable sink: warnings and errors still reach the console.
		lvl = max(lvl, zerolog.WarnLevel)
		writers = append(writers, s.consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	s.root.Store(&zl)
	if old != nil {
		_ = old.Close()
	}
	if openErr != nil {
		zl.Warn().Err(openErr).Str("path", cfg.File.Path).Msg("log file sink disabled")
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func (s *Service) consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{
		Out:        s.console,
		TimeFormat: timeFormat,
		// The caller is already short (file:line); print it as-is.
		FormatCaller: func(i any) string {
			c, _ := i.(string)
			return c
		},
	}
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
