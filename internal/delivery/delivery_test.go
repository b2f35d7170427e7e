package delivery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	tele "gopkg.in/telebot.v4"

	logx "spawnme/pkg/logx"
)

type fakeSink struct {
	name string
	err  error
	got  []Notification
}

func (f *fakeSink) Name() string { return f.name }
func (f *fakeSink) Deliver(_ context.Context, n Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestFanoutSucceedsIfAnySinkSucceeds(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("offline")}
	good := &fakeSink{name: "good"}
	f := NewFanout(logx.Nop(), bad, good)

	if err := f.Deliver(context.Background(), Notification{ID: "1", Title: "Break"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(bad.got) != 1 || len(good.got) != 1 {
		t.Fatalf("every sink should be tried: bad=%d good=%d", len(bad.got), len(good.got))
	}
	if f.Name() != "fanout(bad,good)" {
		t.Fatalf("Name = %q", f.Name())
	}
}

func TestFanoutFailsWhenAllFail(t *testing.T) {
	f := NewFanout(logx.Nop(), &fakeSink{name: "a", err: errors.New("x")}, &fakeSink{name: "b", err: errors.New("y")})
	err := f.Deliver(context.Background(), Notification{})
	if err == nil || !strings.Contains(err.Error(), "a: x") || !strings.Contains(err.Error(), "b: y") {
		t.Fatalf("err = %v", err)
	}
	if err := NewFanout(logx.Nop()).Deliver(context.Background(), Notification{}); err == nil {
		t.Fatalf("empty fanout should fail")
	}
}

func TestNewFallsBackToLogSink(t *testing.T) {
	f := New(Config{}, logx.Nop())
	if f.Name() != "fanout(log)" {
		t.Fatalf("Name = %q", f.Name())
	}
	// Telegram without a token is skipped.
	f = New(Config{Telegram: TelegramConfig{Enabled: true}}, logx.Nop())
	if f.Name() != "fanout(log)" {
		t.Fatalf("Name = %q", f.Name())
	}
}

func TestLogSinkWritesFields(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logx.NewWriter(&buf, "info"))
	if err := s.Deliver(context.Background(), Notification{ID: "abc", Title: "Break", Body: "Time for a break"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"title":"Break"`, `"body":"Time for a break"`, `"id":"abc"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %s", out, want)
		}
	}
}

type fakeBusObject struct {
	dbus.BusObject
	method string
	args   []interface{}
	err    error
}

func (f *fakeBusObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.method = method
	f.args = args
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: []interface{}{uint32(42)}}
}

func TestDesktopSinkCallsNotify(t *testing.T) {
	obj := &fakeBusObject{}
	s := newDesktopSink(DesktopConfig{Icon: "dialog-information"}, obj)
	if err := s.Deliver(context.Background(), Notification{Title: "Water", Body: "Drink water"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if obj.method != notificationsNotify {
		t.Fatalf("method = %q", obj.method)
	}
	if len(obj.args) != 8 {
		t.Fatalf("args = %v", obj.args)
	}
	if obj.args[0] != "spawnme" || obj.args[2] != "dialog-information" || obj.args[3] != "Water" || obj.args[4] != "Drink water" {
		t.Fatalf("args = %v", obj.args)
	}
	if obj.args[7] != int32(-1) {
		t.Fatalf("expire = %v", obj.args[7])
	}

	obj.err = errors.New("no daemon")
	if err := s.Deliver(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeBot struct {
	texts []string
	opts  []*tele.SendOptions
}

func (b *fakeBot) Send(_ tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	b.texts = append(b.texts, what.(string))
	b.opts = append(b.opts, opts[0].(*tele.SendOptions))
	return &tele.Message{ID: len(b.texts)}, nil
}

func TestTelegramSinkFormatsAndSplits(t *testing.T) {
	bot := &fakeBot{}
	s := &TelegramSink{cfg: TelegramConfig{ChatID: 7, ThreadID: 3}, bot: bot}

	if err := s.Deliver(context.Background(), Notification{Title: "Tea & biscuits", Body: "<now>"}); err != nil {
		t.Fatal(err)
	}
	if bot.texts[0] != "<b>Tea &amp; biscuits</b>\n&lt;now&gt;" {
		t.Fatalf("text = %q", bot.texts[0])
	}
	if bot.opts[0].ThreadID != 3 || bot.opts[0].ParseMode != tele.ModeHTML {
		t.Fatalf("opts = %+v", bot.opts[0])
	}

	bot.texts = nil
	long := strings.Repeat("line of text\n", 800)
	if err := s.Deliver(context.Background(), Notification{Title: "Long", Body: long}); err != nil {
		t.Fatal(err)
	}
	if len(bot.texts) < 2 {
		t.Fatalf("expected split, got %d chunks", len(bot.texts))
	}
	for _, c := range bot.texts {
		if utf8.RuneCountInString(c) > telegramTextLimit {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	s := strings.Repeat("a", 9) + "<b>x</b>"
	chunks := splitTelegramText(s, 10, tele.ModeHTML)
	if chunks[0] != strings.Repeat("a", 9) {
		t.Fatalf("chunks = %q", chunks)
	}
	if got := splitTelegramText("short", 10, tele.ModeHTML); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short = %q", got)
	}
}
