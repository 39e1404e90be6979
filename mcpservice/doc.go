// Package mcpservice provides the building blocks the dispatcher routes
// requests to: a method Registry, the Server description advertised during
// initialize, typed protocol errors and a static tools container.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[EchoArgs]("echo",
//	        func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	            return w.AppendText("you said: " + r.Args().Message)
//	        },
//	        mcpservice.WithToolDescription("Echo a message back to the caller"),
//	    ),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// # Registry
//
// Every method the server answers (other than initialize and ping, which the
// dispatcher owns) is a Handler bound in the Registry. Capabilities bind their
// handlers when the Server is built; WithMethodHandler adds or overrides
// bindings. The dispatcher resolves the handler per request, so a binding
// replaced at runtime is visible to the next request.
//
// # Errors
//
// Handlers report protocol failures with *ProtocolError (see ErrorKind).
// Tool failures are not protocol failures: they travel inside a successful
// response as a CallToolResult with IsError set (see Errorf).
//
// # Change notifications
//
// ToolsContainer embeds a ChangeNotifier. Replace, Add and Remove signal it,
// and the dispatcher forwards each signal to the client as
// notifications/tools/list_changed.
package mcpservice
