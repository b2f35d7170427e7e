package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal asks on Out and reads a y/n answer from In.
//
// Unrecognized answers are asked again. EOF on In is an error so a daemon
// without a terminal never records an answer by accident.
//
// One goroutine owns In for the life of the Terminal. A prompt abandoned by
// its context leaves the next line for the following prompt.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan line
}

type line struct {
	text string
	err  error
}

var ErrNoAnswer = errors.New("no answer on terminal")

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

func (t *Terminal) start() {
	t.lines = make(chan line)
	go func() {
		r := bufio.NewReader(t.In)
		for {
			s, err := r.ReadString('\n')
			if s != "" {
				t.lines <- line{text: s}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = ErrNoAnswer
				}
				// Every later prompt sees the same error.
				for {
					t.lines <- line{err: err}
				}
			}
		}
	}()
}

func (t *Terminal) Prompt(ctx context.Context) (Decision, error) {
	t.once.Do(t.start)
	for {
		if t.Out != nil {
			_, _ = fmt.Fprint(t.Out, "Allow spawnme to show notifications? [y/n]: ")
		}
		select {
		case l := <-t.lines:
			if l.err != nil {
				return "", l.err
			}
			if s := strings.TrimSpace(l.text); s != "" {
				if d, err := ParseDecision(s); err == nil {
					return d, nil
				}
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
