// Package mcp contains protocol data types and constants shared by the
// transport, the dispatcher and the tool layer. It mirrors the wire
// representation of the Model Context Protocol while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names and enumerations, helper validation functions).
//
// The package is free of transport logic: the stdio transport and the
// engine import these types but implement their own framing and session
// handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes.
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities capture negotiated feature sets.
// They are exchanged once during initialize and frozen for the lifetime of
// the session.
//
// # Values
//
// Tool input schemas and tool call arguments are free-form JSON. They are
// represented by Value, a tagged union over null, string, number, bool, array
// and object, so that schema construction stays type-checked:
//
//	schema := mcp.Object(map[string]mcp.Value{
//	    "type": mcp.String("object"),
//	    "properties": mcp.Object(map[string]mcp.Value{
//	        "name": mcp.Object(map[string]mcp.Value{
//	            "type":        mcp.String("string"),
//	            "description": mcp.String("Name to greet"),
//	        }),
//	    }),
//	})
//
// # Logging Levels
//
// LoggingLevel values mirror syslog severities defined by the protocol. Use
// IsValidLoggingLevel to validate user-provided values in capability code.
//
// # Compatibility
//
// LatestProtocolVersion reflects the most recent protocol date the server
// targets. SupportedProtocolVersions lists every version the server will echo
// back during negotiation.
package mcp
