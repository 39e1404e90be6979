package tools

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/mcp-file-server/internal/manifest"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/mcpservice"
)

func call(t *testing.T, c *mcpservice.ToolsContainer, name string, args map[string]mcp.Value) *mcp.CallToolResult {
	t.Helper()
	res, err := c.Call(context.Background(), nil, &mcp.CallToolRequestReceived{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 || res.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("expected one text block, got %+v", res.Content)
	}
	return res.Content[0].Text
}

func TestBuild_Defaults(t *testing.T) {
	c := mcpservice.NewToolsContainer(Build(nil)...)
	names := c.Names()
	if len(names) != 2 {
		t.Fatalf("expected two tools, got %v", names)
	}
	for _, tool := range c.Snapshot() {
		if tool.Description == "" {
			t.Fatalf("tool %s has no description", tool.Name)
		}
	}
}

func TestHello(t *testing.T) {
	c := mcpservice.NewToolsContainer(Build(manifest.Default())...)

	got := text(t, call(t, c, HelloName, map[string]mcp.Value{"name": mcp.String("Ada")}))
	if got != "Hello, Ada! This message is from your MCP File Server." {
		t.Fatalf("unexpected greeting %q", got)
	}
	got = text(t, call(t, c, HelloName, nil))
	if got != "Hello, World! This message is from your MCP File Server." {
		t.Fatalf("unexpected default greeting %q", got)
	}

	cases := []struct {
		name string
		args map[string]mcp.Value
		want string
	}{
		{"non-string name", map[string]mcp.Value{"name": mcp.Int(7)}, "Hello, World! This message is from your MCP File Server."},
		{"unknown argument", map[string]mcp.Value{"nmae": mcp.String("typo")}, "Hello, World! This message is from your MCP File Server."},
		{"extra argument", map[string]mcp.Value{"name": mcp.String("Bob"), "loud": mcp.Bool(true)}, "Hello, Bob! This message is from your MCP File Server."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, c, HelloName, tc.args)
			if res.IsError {
				t.Fatalf("arguments must be accepted leniently, got %+v", res)
			}
			if got := text(t, res); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestHello_SchemaDescribesName(t *testing.T) {
	tool := Hello("hi")
	prop, ok := tool.Descriptor.InputSchema.Get("properties")
	if !ok {
		t.Fatalf("schema has no properties: %+v", tool.Descriptor.InputSchema)
	}
	name, ok := prop.Get("name")
	if !ok {
		t.Fatalf("schema has no name property")
	}
	desc, _ := name.Get("description")
	if s, _ := desc.AsString(); s != "Name to greet" {
		t.Fatalf("unexpected name description %q", s)
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	c := mcpservice.NewToolsContainer(Build(manifest.Default(), WithClock(func() time.Time { return fixed }))...)

	for _, args := range []map[string]mcp.Value{nil, {"zone": mcp.String("PST")}} {
		res := call(t, c, CurrentTimeName, args)
		if res.IsError {
			t.Fatalf("arguments must be ignored, got %+v", res)
		}
		if got := text(t, res); got != "Current time: Tuesday, March 5, 2024 at 2:07:09 PM UTC" {
			t.Fatalf("unexpected time %q", got)
		}
	}
}

func TestBuild_ManifestDisablesAndGreets(t *testing.T) {
	m := &manifest.Manifest{Greeting: "Nice to meet you.", Disabled: []string{CurrentTimeName}}
	c := mcpservice.NewToolsContainer(Build(m)...)
	if names := c.Names(); len(names) != 1 || names[0] != HelloName {
		t.Fatalf("expected only hello, got %v", names)
	}
	if got := text(t, call(t, c, HelloName, nil)); got != "Hello, World! Nice to meet you." {
		t.Fatalf("unexpected greeting %q", got)
	}
	res := call(t, c, CurrentTimeName, nil)
	if !res.IsError || text(t, res) != "Unknown tool: get_current_time" {
		t.Fatalf("disabled tool must be unknown, got %+v", res)
	}
}
