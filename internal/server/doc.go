// Package server implements the MCP (Model Context Protocol) server for
// recognition rules.
//
// The server speaks JSON-RPC 2.0 over stdio, one message per line:
//   - Input: JSON-RPC requests on stdin
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Recognition:
//   - recognize_image: Match an image file against the stored rules
//   - embed_image: Compute the appearance embedding of an image file
//
// Rule management:
//   - list_rules: List rules in evaluation order
//   - add_rule: Create a rule, optionally from a reference image
//   - delete_rule: Remove a rule
//   - reorder_rules: Move rules to the front of the evaluation order
//
// Diagnostics:
//   - recognition_history: Recent recognitions, newest first
//   - runtime_status: Load state of the text, label and embedding backends
//
// # Error Handling
//
// Unknown methods return -32601 and malformed tools/call params -32602. Tool
// failures return -32000 with the Go error string in data.
//
// # Usage
//
//	srv := server.New(svc, version, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
