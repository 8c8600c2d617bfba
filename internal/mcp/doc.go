// Package mcp implements the Model Context Protocol (MCP) server for ragify.
//
// The MCP server exposes four tools to AI coding assistants:
//   - index_codebase: Index a Ruby project for hybrid search
//   - search_code: Search indexed code with natural language queries
//   - get_stats: Report index statistics
//   - clear_index: Remove all indexed data
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output. Logs
// go to stderr so stdout stays reserved for protocol messages.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	ragify serve
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout.
//
// # Degraded Search
//
// When the embedding service is unreachable, search_code requests in hybrid
// mode fall back to full-text search and flag the response as degraded.
// Semantic mode has no fallback and reports an error instead.
package mcp
