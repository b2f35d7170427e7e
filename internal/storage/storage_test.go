package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "spawnme/pkg/logx"
)

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := st.Set(ctx, "SavedTemplates", []byte(`[{"id":1,"title":"a","content":"b"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Set(ctx, "SavedTemplates", []byte(`[]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := st.Get(ctx, "SavedTemplates")
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v", ok, err)
	}
	if string(v) != `[]` {
		t.Fatalf("Get = %q, want []", v)
	}

	if err := st.Set(ctx, "binary", []byte{0xff, 0x00, 0x01}); err != nil {
		t.Fatalf("Set binary: %v", err)
	}
	v, ok, err = st.Get(ctx, "binary")
	if err != nil || !ok || string(v) != string([]byte{0xff, 0x00, 0x01}) {
		t.Fatalf("Get binary = %v ok=%v err=%v", v, ok, err)
	}

	if err := st.Delete(ctx, "binary"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "binary"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "binary"); ok {
		t.Fatalf("expected deleted key to be absent")
	}
}

func TestMemoryStore(t *testing.T) {
	st := NewMemory()
	exerciseStore(t, st)

	// Returned slices must not alias stored data.
	ctx := context.Background()
	_ = st.Set(ctx, "k", []byte("abc"))
	v, _, _ := st.Get(ctx, "k")
	v[0] = 'z'
	v2, _, _ := st.Get(ctx, "k")
	if string(v2) != "abc" {
		t.Fatalf("stored value mutated: %q", v2)
	}

	_ = st.Close()
	if err := st.Set(ctx, "k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Set(context.Background(), "NotificationPermission", []byte(`"granted"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = st.Close()

	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	v, ok, err := st2.Get(context.Background(), "NotificationPermission")
	if err != nil || !ok || string(v) != `"granted"` {
		t.Fatalf("Get after reopen = %q ok=%v err=%v", v, ok, err)
	}
	v, ok, _ = st2.Get(context.Background(), "SavedTemplates")
	if !ok || string(v) != `[]` {
		t.Fatalf("SavedTemplates after reopen = %q ok=%v", v, ok)
	}
}

func TestFileStoreSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	daemon, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open daemon: %v", err)
	}
	defer daemon.Close()
	cli, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open cli: %v", err)
	}

	tpl := `[{"id":1,"title":"Break","content":"Stand up"}]`
	if err := cli.Set(ctx, "SavedTemplates", []byte(tpl)); err != nil {
		t.Fatalf("cli Set: %v", err)
	}
	_ = cli.Close()

	v, ok, err := daemon.Get(ctx, "SavedTemplates")
	if err != nil || !ok || string(v) != tpl {
		t.Fatalf("daemon Get = %q ok=%v err=%v", v, ok, err)
	}

	if err := daemon.Set(ctx, "PendingNotifications", []byte(`[]`)); err != nil {
		t.Fatalf("daemon Set: %v", err)
	}
	if err := daemon.Delete(ctx, "NotificationPermission"); err != nil {
		t.Fatalf("daemon Delete: %v", err)
	}

	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	for _, key := range []string{"SavedTemplates", "PendingNotifications"} {
		if _, ok, err := reopened.Get(ctx, key); err != nil || !ok {
			t.Fatalf("%s after shared writes: ok=%v err=%v", key, ok, err)
		}
	}
}

func TestFileStoreCorruptDocumentMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open with corrupt file: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.Get(context.Background(), "SavedTemplates"); ok {
		t.Fatalf("expected empty store")
	}

	entries, _ := os.ReadDir(dir)
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "store.json.corrupt-") {
			found = true
		}
	}
	if !found {
		t.Fatalf("corrupt document was not kept aside: %v", entries)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawnme.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	exerciseStore(t, st)
	_ = st.Close()

	st2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer st2.Close()
	if v, ok, err := st2.Get(context.Background(), "SavedTemplates"); err != nil || !ok || string(v) != `[]` {
		t.Fatalf("Get after reopen = %q ok=%v err=%v", v, ok, err)
	}
}

func TestOpenValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "file without path", cfg: Config{Driver: "file"}},
		{name: "sqlite without path", cfg: Config{Driver: "sqlite"}},
		{name: "redis without addr", cfg: Config{Driver: "redis"}},
		{name: "unknown driver", cfg: Config{Driver: "etcd"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.cfg, logx.Nop()); err == nil {
				t.Fatalf("expected error for %+v", tt.cfg)
			}
		})
	}

	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("driver none = %v, want ErrDisabled", err)
	}
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil || st == nil {
		t.Fatalf("memory driver: %v", err)
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	s := newRedisStore(nil, "spawnme:", logx.Nop())
	if got := s.key("SavedTemplates"); got != "spawnme:SavedTemplates" {
		t.Fatalf("key = %q", got)
	}
}
