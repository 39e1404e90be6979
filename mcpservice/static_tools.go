package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ggoodman/mcp-file-server/internal/logctx"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/sessions"
	"github.com/invopop/jsonschema"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest is the container for tool call input. It is generic over the
// typed argument struct A.
type ToolRequest[A any] struct {
	name string
	raw  map[string]mcp.Value
	args A
}

func (r *ToolRequest[A]) Name() string                       { return r.name }
func (r *ToolRequest[A]) RawArguments() map[string]mcp.Value { return r.raw }
func (r *ToolRequest[A]) Args() A                            { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
	lenientArguments          bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// WithToolLenientArguments makes argument decoding best effort: unknown
// fields are allowed and a value that does not fit A leaves Args zero-valued
// instead of failing the call. Handlers can still inspect RawArguments.
func WithToolLenientArguments() ToolOption {
	return func(c *toolConfig) {
		c.allowAdditionalProperties = true
		c.lenientArguments = true
	}
}

// NewTool constructs a StaticTool from a typed args struct A. It reflects a
// JSON Schema from A using invopop/jsonschema, stores it as the descriptor's
// input schema and wraps fn with runtime decoding of the call arguments.
// Argument decoding failures are reported as isError results.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if err := decodeArguments(req.Arguments, &a, cfg.allowAdditionalProperties); err != nil {
				if !cfg.lenientArguments {
					return Errorf("invalid arguments: %v", err), nil
				}
				a = *new(A)
			}
		}
		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

func decodeArguments(args map[string]mcp.Value, dst any, lenient bool) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if !lenient {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}

// reflectInputSchema reflects a Go type A into a JSON Schema and converts it
// to an mcp.Value. Non-object schemas collapse to an empty object schema.
func reflectInputSchema[A any](allowAdditional bool) mcp.Value {
	empty := mcp.Object(map[string]mcp.Value{
		"type":       mcp.String("object"),
		"properties": mcp.Object(nil),
	})
	if !allowAdditional {
		empty = empty.With("additionalProperties", mcp.Bool(false))
	}

	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return empty
	}
	v, err := mcp.ValueOf(s)
	if err != nil || v.Kind() != mcp.KindObject {
		return empty
	}
	v = v.Without("$schema").Without("$id")
	if _, ok := v.Get("properties"); !ok {
		v = v.With("properties", mcp.Object(nil))
	}
	return v
}

// ToolsContainer owns a mutable, threadsafe set of tool descriptors and
// handlers. Registered with WithToolsCapability it serves tools/list and
// tools/call, and signals list changes through its embedded ChangeNotifier.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool             // descriptors for listing, in registration order
	handlers map[string]ToolHandler // name -> handler

	notifier ChangeNotifier
}

// NewToolsContainer constructs a new ToolsContainer with the given tool definitions.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	st := &ToolsContainer{}
	st.set(defs)
	return st
}

// Snapshot returns a copy of the current tool descriptors.
func (st *ToolsContainer) Snapshot() []mcp.Tool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return slices.Clone(st.tools)
}

// Names returns the current tool names in listing order.
func (st *ToolsContainer) Names() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, len(st.tools))
	for i, t := range st.tools {
		out[i] = t.Name
	}
	return out
}

// Replace atomically replaces the entire tool set and notifies subscribers.
func (st *ToolsContainer) Replace(defs ...StaticTool) {
	st.set(defs)
	st.notifier.Notify()
}

func (st *ToolsContainer) set(defs []StaticTool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tools = make([]mcp.Tool, 0, len(defs))
	st.handlers = make(map[string]ToolHandler, len(defs))
	for _, d := range defs {
		// last write wins on duplicate names
		if _, dup := st.handlers[d.Descriptor.Name]; dup {
			st.tools = slices.DeleteFunc(st.tools, func(t mcp.Tool) bool { return t.Name == d.Descriptor.Name })
		}
		st.tools = append(st.tools, d.Descriptor)
		st.handlers[d.Descriptor.Name] = d.Handler
	}
}

// Add registers a new tool if it doesn't duplicate an existing name.
// Returns true if added.
func (st *ToolsContainer) Add(def StaticTool) bool {
	st.mu.Lock()
	if st.handlers == nil {
		st.handlers = make(map[string]ToolHandler)
	}
	name := def.Descriptor.Name
	if _, exists := st.handlers[name]; exists {
		st.mu.Unlock()
		return false
	}
	st.tools = append(st.tools, def.Descriptor)
	st.handlers[name] = def.Handler
	st.mu.Unlock()

	st.notifier.Notify()
	return true
}

// Remove removes a tool by name. Returns true if removed.
func (st *ToolsContainer) Remove(name string) bool {
	st.mu.Lock()
	if _, ok := st.handlers[name]; !ok {
		st.mu.Unlock()
		return false
	}
	delete(st.handlers, name)
	st.tools = slices.DeleteFunc(st.tools, func(t mcp.Tool) bool { return t.Name == name })
	st.mu.Unlock()

	st.notifier.Notify()
	return true
}

// Call dispatches a request to the named tool. An unknown tool and a failing
// tool both produce an isError result rather than a protocol error; only a
// *ProtocolError returned by the tool is passed through.
func (st *ToolsContainer) Call(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, InvalidParams("missing tool name", nil)
	}
	st.mu.RLock()
	h := st.handlers[req.Name]
	st.mu.RUnlock()
	if h == nil {
		return Errorf("Unknown tool: %s", req.Name), nil
	}
	res, err := h(ctx, session, req)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return nil, err
		}
		return Errorf("%v", err), nil
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}
	return res, nil
}

// Subscriber returns a per-subscriber channel that receives a signal whenever
// the tool set changes.
func (st *ToolsContainer) Subscriber() <-chan struct{} {
	return st.notifier.Subscriber()
}

// Unsubscribe releases a channel obtained from Subscriber.
func (st *ToolsContainer) Unsubscribe(ch <-chan struct{}) {
	st.notifier.Unsubscribe(ch)
}

// Close stops change notifications. Subscriber channels are closed.
func (st *ToolsContainer) Close() {
	st.notifier.Close()
}

func (st *ToolsContainer) bind(r *Registry) {
	r.Register(string(mcp.ToolsListMethod), Typed(func(ctx context.Context, _ sessions.Session, _ *mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
		return &mcp.ListToolsResult{Tools: st.Snapshot()}, nil
	}))
	r.Register(string(mcp.ToolsCallMethod), HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
		var p mcp.CallToolRequestReceived
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, InvalidParams("invalid tools/call params", err)
		}
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: p.Name})
		return st.Call(ctx, req.Session, &p)
	}))
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}
