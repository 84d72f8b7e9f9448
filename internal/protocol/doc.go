// Package protocol defines the inbound session-update envelope and the
// outbound prompt payload of the JSON-lines transport. The engine consumes
// SessionUpdate values; where they come from (subprocess stdio, a socket, a
// test fixture) is the caller's business.
package protocol
