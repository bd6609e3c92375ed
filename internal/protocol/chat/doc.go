// Package chat implements the linechat wire protocol: newline-delimited
// UTF-8 command lines from clients and single-line replies from the server.
//
// The package is transport-agnostic. It contains the line framer that turns
// raw byte chunks into complete lines, the whitespace normalizer, the command
// parser, and the reply constructors. All connection adapters (TCP,
// WebSocket) speak this protocol.
package chat
