// Package stdio serves one MCP session over newline-delimited JSON-RPC on
// stdin and stdout. It is intended for servers launched as a subprocess by an
// MCP client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON object per line, UTF-8, no embedded newlines
//	Sessions         : one, in memory, created at startup
//	Shutdown         : SIGINT/SIGTERM or EOF, then a bounded drain
//
// Logs must never go to stdout; the default slog handler writes to stderr.
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "my-stdio-server", Version: "0.1.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//	h := stdio.NewHandler(srv, stdio.WithGracePeriod(5*time.Second))
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// Transport can also be used on its own behind the transport.Transport
// interface.
package stdio
