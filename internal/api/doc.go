// Package api exposes the queue service over HTTP as JSON.
//
// Payload types in this package are the transport representation shared by
// the HTTP handlers and the CLI's --json output.
package api
