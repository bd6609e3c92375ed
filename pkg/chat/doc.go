// Package chat implements the linechat core: per-connection sessions, the
// process-wide registry of live sessions and reserved usernames, the command
// dispatcher, and the idle supervisor.
//
// The core is transport-agnostic. Adapters (TCP, WebSocket) accept
// connections, wrap them in the Conn interface, and feed decoded lines into
// Service.HandleLine. Every disconnect cause (client close, read error,
// idle timeout, server shutdown) funnels through the single idempotent
// Service.Disconnect path, which releases the username reservation and
// notifies peers exactly once.
package chat
