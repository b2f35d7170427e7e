package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"spawnme/internal/app"
	"spawnme/internal/notifier"
	"spawnme/internal/permission"
	"spawnme/internal/templates"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runTemplates(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("templates: expected list, add, show or delete")
	}
	lib := a.Templates(ctx)
	sub, rest := args[0], args[1:]
	fs := newFlagSet("templates "+sub, out)

	switch sub {
	case "list", "ls":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		ts := lib.List()
		if len(ts) == 0 {
			fmt.Fprintln(out, "no templates")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCONTENT")
		for _, t := range ts {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", t.ID, t.Title, t.Body)
		}
		return tw.Flush()

	case "add":
		title := fs.String("title", "", "notification title")
		body := fs.String("body", "", "notification body")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		t, err := lib.Create(ctx, *title, *body)
		if err != nil {
			var se *templates.SerializationError
			if errors.As(err, &se) {
				return fmt.Errorf("template %d created but not saved: %w", t.ID, err)
			}
			return err
		}
		fmt.Fprintf(out, "created template %d\n", t.ID)
		return nil

	case "show", "delete", "rm":
		id := fs.Int("id", 0, "template id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *id == 0 && fs.NArg() > 0 {
			n, err := strconv.Atoi(fs.Arg(0))
			if err != nil {
				return fmt.Errorf("invalid template id %q", fs.Arg(0))
			}
			*id = n
		}
		if sub == "show" {
			t, ok := lib.Get(*id)
			if !ok {
				return fmt.Errorf("no template %d", *id)
			}
			fmt.Fprintf(out, "id:      %d\ntitle:   %s\ncontent: %s\n", t.ID, t.Title, t.Body)
			return nil
		}
		removed, err := lib.Remove(ctx, *id)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(out, "no template %d\n", *id)
			return nil
		}
		fmt.Fprintf(out, "deleted template %d\n", *id)
		return nil

	default:
		return fmt.Errorf("templates: unknown subcommand %q", sub)
	}
}

// defaultSendDelay is the delay used by -delayed.
const defaultSendDelay = 3 * time.Second

func runSend(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("send", out)
	tplID := fs.Int("template", 0, "saved template id")
	title := fs.String("title", "", "notification title")
	body := fs.String("body", "", "notification body")
	delay := fs.Duration("delay", 0, "deliver after this long")
	delayed := fs.Bool("delayed", false, fmt.Sprintf("deliver after %s", defaultSendDelay))
	now := fs.Bool("now", false, "deliver immediately (same as -delay 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tplID != 0 && (*title != "" || *body != "") {
		return fmt.Errorf("send: -template cannot be combined with -title or -body")
	}
	if *now && (*delayed || *delay != 0) {
		return fmt.Errorf("send: -now cannot be combined with -delay or -delayed")
	}

	req := notifier.Request{Title: *title, Body: *body, Delay: *delay}
	if *delayed && req.Delay == 0 {
		req.Delay = defaultSendDelay
	}
	if *tplID != 0 {
		t, ok := a.Templates(ctx).Get(*tplID)
		if !ok {
			return fmt.Errorf("no template %d", *tplID)
		}
		req.Title, req.Body = t.Title, t.Body
	}

	h, err := a.Notifier().Schedule(ctx, req)
	if errors.Is(err, notifier.ErrPermissionDenied) {
		return fmt.Errorf("notifications are not allowed (run `spawnme permission grant` to change)")
	}
	if err != nil {
		return err
	}
	if req.Delay > 0 {
		fmt.Fprintf(out, "scheduled %s, due %s\n", h.ID, humanize.Time(h.DueAt))
	}

	// A CLI process has to stay alive until the timer fires.
	if err := a.Notifier().Wait(ctx); err != nil {
		return fmt.Errorf("interrupted before delivery: %w", err)
	}
	for _, item := range a.Notifier().Snapshot() {
		if item.ID != h.ID {
			continue
		}
		if item.Err != "" {
			return fmt.Errorf("delivery failed via %s: %s", item.Sink, item.Err)
		}
		fmt.Fprintf(out, "delivered %s via %s\n", h.ID, item.Sink)
	}
	return nil
}

func runPermission(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("permission: expected status, grant, deny or reset")
	}
	gate := a.Permission()
	switch args[0] {
	case "status":
		d, ok, err := gate.Status(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "not asked yet")
			return nil
		}
		fmt.Fprintln(out, d)
		return nil
	case "grant", "deny":
		d := permission.Granted
		if args[0] == "deny" {
			d = permission.Denied
		}
		if err := gate.Set(ctx, d); err != nil {
			return err
		}
		fmt.Fprintln(out, d)
		return nil
	case "reset":
		if err := gate.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "permission cleared; you will be asked again")
		return nil
	default:
		return fmt.Errorf("permission: unknown subcommand %q", args[0])
	}
}
