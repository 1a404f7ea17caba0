// Package httpserver exposes an ObscuraMint ledger and its coprocessor over
// HTTP.
//
// Reads are public. Mutating routes require the X-Obscura-* signed request
// headers; the recovered signer becomes the caller the ledger checks
// ownership against. A signature is accepted once, within five minutes of its
// timestamp.
//
// Besides the JSON API the server provides /livez, /readyz, /drain and
// /undrain for orchestration, a websocket event stream, and optionally pprof
// under /debug.
package httpserver
