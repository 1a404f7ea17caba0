// Package api defines the wire types of the ObscuraMint node HTTP API, the
// mapping between errors and API error codes, and the server configuration.
//
// The clients subpackage implements the API from the caller's side.
package api
