package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig(t *testing.T, permission string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spawnme.yaml")
	body := "logging:\n  level: error\nstorage:\n  driver: file\n  path: " + filepath.Join(dir, "store.json") +
		"\npermission:\n  mode: " + permission + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("NOTIFY_SOCKET", "")
	var out, errOut strings.Builder
	code := run(args, strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestTemplatesCommands(t *testing.T) {
	cfg := testConfig(t, "granted")

	if code, out, errOut := runCLI(t, "-config", cfg, "templates", "add", "-title", "Break", "-body", "Time for a break"); code != 0 || !strings.Contains(out, "created template 1") {
		t.Fatalf("add: code=%d out=%q err=%q", code, out, errOut)
	}
	if code, out, _ := runCLI(t, "-config", cfg, "templates", "add", "-title", "Water", "-body", "Drink water"); code != 0 || !strings.Contains(out, "created template 2") {
		t.Fatalf("second add: code=%d out=%q", code, out)
	}
	if code, out, _ := runCLI(t, "-config", cfg, "templates", "delete", "-id", "1"); code != 0 || !strings.Contains(out, "deleted template 1") {
		t.Fatalf("delete: code=%d out=%q", code, out)
	}
	if code, out, _ := runCLI(t, "-config", cfg, "templates", "delete", "1"); code != 0 || !strings.Contains(out, "no template 1") {
		t.Fatalf("second delete: code=%d out=%q", code, out)
	}

	code, out, _ := runCLI(t, "-config", cfg, "templates", "list")
	if code != 0 || strings.Contains(out, "Break") || !strings.Contains(out, "Drink water") {
		t.Fatalf("list: code=%d out=%q", code, out)
	}
	if code, out, _ := runCLI(t, "-config", cfg, "templates", "show", "-id", "2"); code != 0 || !strings.Contains(out, "Water") {
		t.Fatalf("show: code=%d out=%q", code, out)
	}
	if code, _, _ := runCLI(t, "-config", cfg, "templates", "show", "-id", "9"); code != 1 {
		t.Fatalf("show missing: code=%d", code)
	}
}

func TestSendCommand(t *testing.T) {
	cfg := testConfig(t, "granted")
	runCLI(t, "-config", cfg, "templates", "add", "-title", "Break", "-body", "Time for a break")

	code, out, errOut := runCLI(t, "-config", cfg, "send", "-template", "1", "-now")
	if code != 0 || !strings.Contains(out, "delivered") {
		t.Fatalf("send: code=%d out=%q err=%q", code, out, errOut)
	}
	code, out, _ = runCLI(t, "-config", cfg, "send", "-title", "Soon", "-body", "b", "-delay", "50ms")
	if code != 0 || !strings.Contains(out, "scheduled") || !strings.Contains(out, "delivered") {
		t.Fatalf("delayed send: code=%d out=%q", code, out)
	}
	if code, _, errOut := runCLI(t, "-config", cfg, "send", "-template", "7"); code != 1 || !strings.Contains(errOut, "no template 7") {
		t.Fatalf("missing template: code=%d err=%q", code, errOut)
	}
}

func TestSendRejectsConflictingFlags(t *testing.T) {
	cfg := testConfig(t, "granted")
	runCLI(t, "-config", cfg, "templates", "add", "-title", "Break", "-body", "Time for a break")

	for _, args := range [][]string{
		{"-template", "1", "-title", "Other"},
		{"-template", "1", "-body", "Other"},
		{"-title", "x", "-now", "-delayed"},
	} {
		full := append([]string{"-config", cfg, "send"}, args...)
		code, out, errOut := runCLI(t, full...)
		if code != 1 || !strings.Contains(errOut, "cannot be combined") || strings.Contains(out, "delivered") {
			t.Fatalf("send %v: code=%d out=%q err=%q", args, code, out, errOut)
		}
	}
}

func TestSendDenied(t *testing.T) {
	cfg := testConfig(t, "denied")
	code, out, errOut := runCLI(t, "-config", cfg, "send", "-title", "x", "-body", "y")
	if code != 1 || !strings.Contains(errOut, "not allowed") || strings.Contains(out, "delivered") {
		t.Fatalf("denied send: code=%d out=%q err=%q", code, out, errOut)
	}
}

func TestPermissionCommands(t *testing.T) {
	cfg := testConfig(t, "prompt")
	steps := []struct {
		args []string
		want string
	}{
		{[]string{"status"}, "not asked yet"},
		{[]string{"deny"}, "denied"},
		{[]string{"status"}, "denied"},
		{[]string{"grant"}, "granted"},
		{[]string{"status"}, "granted"},
		{[]string{"reset"}, "asked again"},
		{[]string{"status"}, "not asked yet"},
	}
	for _, st := range steps {
		args := append([]string{"-config", cfg, "permission"}, st.args...)
		code, out, errOut := runCLI(t, args...)
		if code != 0 || !strings.Contains(out, st.want) {
			t.Fatalf("permission %v: code=%d out=%q err=%q", st.args, code, out, errOut)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("no args: code=%d", code)
	}
	if code, _, _ := runCLI(t, "bogus"); code != 2 {
		t.Fatalf("unknown command: code=%d", code)
	}
	if code, out, _ := runCLI(t, "version"); code != 0 || !strings.Contains(out, "spawnme") {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
}
