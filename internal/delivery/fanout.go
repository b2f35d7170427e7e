package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	logx "spawnme/pkg/logx"
)

// Fanout delivers to every sink. It succeeds when at least one sink does.
type Fanout struct {
	sinks []Sink
	log   logx.Logger
}

func NewFanout(log logx.Logger, sinks ...Sink) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{sinks: sinks, log: log}
}

// New builds the sinks enabled in cfg. A sink that fails to initialize is
// logged and skipped; the log sink is used if nothing else is left.
func New(cfg Config, log logx.Logger) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	var sinks []Sink
	if cfg.Desktop.Enabled {
		if s, err := NewDesktopSink(cfg.Desktop); err != nil {
			log.Warn("desktop sink unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Telegram.Enabled {
		if s, err := NewTelegramSink(cfg.Telegram); err != nil {
			log.Warn("telegram sink unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Log || len(sinks) == 0 {
		sinks = append(sinks, NewLogSink(log.With(logx.String("sink", "log"))))
	}
	return NewFanout(log, sinks...)
}

func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) Deliver(ctx context.Context, n Notification) error {
	if len(f.sinks) == 0 {
		return errors.New("no delivery sinks configured")
	}
	var errs []error
	ok := 0
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			f.log.Warn("sink delivery failed", logx.String("sink", s.Name()), logx.String("id", n.ID), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		ok++
	}
	if ok > 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds a connection.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
