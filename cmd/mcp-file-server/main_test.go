package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestVersionCommand(t *testing.T) {
	t.Setenv("MCP_SERVER_NAME", "Test Server")
	t.Setenv("MCP_SERVER_VERSION", "9.9.9")

	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out, io.Discard)
	cmd.SetArgs([]string{"version", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Test Server 9.9.9" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRootCommand_InvalidFlag(t *testing.T) {
	cmd := newRootCmd(strings.NewReader(""), io.Discard, io.Discard)
	cmd.SetArgs([]string{"--log-level", "shouty", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestRootCommand_ServesUntilEOF(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(manifestPath, []byte("greeting: Welcome aboard.\ndisabled: [get_current_time]\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	cmd := newRootCmd(inR, outW, io.Discard)
	cmd.SetArgs([]string{
		"--env-file", filepath.Join(dir, "none.env"),
		"--tools-manifest", manifestPath,
		"--shutdown-grace", "1s",
	})
	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	next := func() map[string]any {
		t.Helper()
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("stdout closed early")
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(l), &m); err != nil {
				t.Fatalf("decode %q: %v", l, err)
			}
			return m
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for output")
			return nil
		}
	}
	send := func(s string) {
		t.Helper()
		if _, err := inW.Write([]byte(s + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`)
	initResp := next()
	info := initResp["result"].(map[string]any)["serverInfo"].(map[string]any)
	if info["name"] != "MCP File Server" {
		t.Fatalf("unexpected server info %v", info)
	}
	send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	send(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	tools := next()["result"].(map[string]any)["tools"].([]any)
	if len(tools) != 1 || tools[0].(map[string]any)["name"] != "hello" {
		t.Fatalf("manifest not applied: %v", tools)
	}

	send(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"hello","arguments":{"name":"Ada"}}}`)
	content := next()["result"].(map[string]any)["content"].([]any)
	if text := content[0].(map[string]any)["text"]; text != "Hello, Ada! Welcome aboard." {
		t.Fatalf("unexpected hello output %v", text)
	}

	send(`{"jsonrpc":"2.0","id":4,"method":"logging/setLevel","params":{"level":"debug"}}`)
	if resp := next(); resp["error"] != nil {
		t.Fatalf("setLevel failed: %v", resp["error"])
	}

	_ = inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop on EOF")
	}
}

// stopWriter records output and counts writes that arrive after stop.
type stopWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	stopped bool
	late    []string
}

func (w *stopWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.late = append(w.late, string(p))
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *stopWriter) stop() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	return w.buf.String()
}

func TestRootCommand_ManifestWatcherStopsBeforeReturn(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(manifestPath, []byte("greeting: Hi.\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	var stderr stopWriter
	cmd := newRootCmd(strings.NewReader(""), io.Discard, &stderr)
	cmd.SetArgs([]string{
		"--env-file", filepath.Join(dir, "none.env"),
		"--tools-manifest", manifestPath,
		"--log-level", "debug",
		"--log-format", "json",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	logs := stderr.stop()
	if !strings.Contains(logs, "manifest.watch.start") {
		t.Fatalf("watcher did not run before return:\n%s", logs)
	}

	time.Sleep(100 * time.Millisecond)
	stderr.mu.Lock()
	defer stderr.mu.Unlock()
	if len(stderr.late) != 0 {
		t.Fatalf("logged after run returned: %q", stderr.late)
	}
}
