// Package mcpdiag exposes the validation engine to agent tooling over the
// Model Context Protocol.
//
// The surface is diagnostic and read-only: two tools, pipeline_health and
// session_report, delegate to the orchestrator and answer with the same
// wire types the REST facade serves, so an agent and a curl see one schema.
// The server runs on the stdio transport and is enabled by configuration.
package mcpdiag
