// Package manifest reads the YAML file that shapes the server's tool set and
// reloads it when the file changes on disk.
//
//	greeting: "This message is from your MCP File Server."
//	disabled:
//	  - get_current_time
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultGreeting is appended to the hello tool's output when the manifest
// does not set one.
const DefaultGreeting = "This message is from your MCP File Server."

// Manifest describes the tool set.
type Manifest struct {
	// Greeting is appended to the hello tool's output.
	Greeting string `yaml:"greeting"`
	// Disabled lists tool names that are not offered.
	Disabled []string `yaml:"disabled"`
}

// Default returns the manifest used when no file is configured.
func Default() *Manifest {
	return &Manifest{Greeting: DefaultGreeting}
}

// Enabled reports whether the named tool is offered.
func (m *Manifest) Enabled(name string) bool {
	return !slices.Contains(m.Disabled, name)
}

// Load parses the manifest at path. An empty file yields Default. Unknown
// keys are rejected so typos do not silently change the tool set.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Greeting == "" {
		m.Greeting = DefaultGreeting
	}
	return m, nil
}

// reloadDelay coalesces the burst of events editors produce for one save.
const reloadDelay = 50 * time.Millisecond

// Watch reloads the manifest whenever the file at path changes and passes
// every successfully parsed version to onChange. A file that fails to parse
// is logged and the previous version stays in effect. Watch blocks until ctx
// ends.
//
// The parent directory is watched rather than the file so that atomic
// replace-by-rename saves are seen.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(*Manifest)) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.DebugContext(ctx, "manifest.watch.start", slog.String("path", abs))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			m, err := Load(abs)
			if err != nil {
				log.WarnContext(ctx, "manifest.reload.fail", slog.String("path", abs), slog.String("err", err.Error()))
				continue
			}
			log.InfoContext(ctx, "manifest.reload.ok", slog.String("path", abs), slog.Int("disabled", len(m.Disabled)))
			onChange(m)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "manifest.watch.error", slog.String("err", err.Error()))
		}
	}
}
