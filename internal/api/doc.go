// Package api exposes the HTTP surface of the conversational agent: the
// chat endpoint, the transfer history listing, and the health check. All
// responses share a small JSON envelope carrying an RFC 3339 timestamp.
package api
