// Package tools defines the reference tools served by mcp-file-server.
package tools

import (
	"context"
	"time"

	"github.com/ggoodman/mcp-file-server/internal/manifest"
	"github.com/ggoodman/mcp-file-server/mcpservice"
	"github.com/ggoodman/mcp-file-server/sessions"
)

// Tool names.
const (
	HelloName       = "hello"
	CurrentTimeName = "get_current_time"
)

// TimeLayout renders the full date and time, e.g.
// "Monday, January 2, 2006 at 3:04:05 PM MST".
const TimeLayout = "Monday, January 2, 2006 at 3:04:05 PM MST"

// Option configures Build.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for get_current_time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Build returns the tools enabled by m, in a stable order.
func Build(m *manifest.Manifest, opts ...Option) []mcpservice.StaticTool {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if m == nil {
		m = manifest.Default()
	}

	var out []mcpservice.StaticTool
	if m.Enabled(HelloName) {
		out = append(out, Hello(m.Greeting))
	}
	if m.Enabled(CurrentTimeName) {
		out = append(out, CurrentTime(o.now))
	}
	return out
}

// HelloArgs is the input of the hello tool.
type HelloArgs struct {
	Name string `json:"name,omitempty" jsonschema:"description=Name to greet"`
}

// Hello greets the caller by name followed by greeting. A missing or
// non-string name greets "World"; other arguments are ignored.
func Hello(greeting string) mcpservice.StaticTool {
	return mcpservice.NewTool(HelloName,
		func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[HelloArgs]) error {
			name, ok := r.RawArguments()["name"].AsString()
			if !ok {
				name = "World"
			}
			return w.AppendTextf("Hello, %s! %s", name, greeting)
		},
		mcpservice.WithToolDescription("A simple hello world tool"),
		mcpservice.WithToolLenientArguments(),
	)
}

type currentTimeArgs struct{}

// CurrentTime reports now() formatted with TimeLayout. Arguments are
// ignored.
func CurrentTime(now func() time.Time) mcpservice.StaticTool {
	return mcpservice.NewTool(CurrentTimeName,
		func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, _ *mcpservice.ToolRequest[currentTimeArgs]) error {
			return w.AppendText("Current time: " + now().Format(TimeLayout))
		},
		mcpservice.WithToolDescription("Get the current date and time"),
		mcpservice.WithToolLenientArguments(),
	)
}
