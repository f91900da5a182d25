// Package httplog provides request logging for HTTP handlers.
// Every request gets a correlation identifier, taken from the X-Request-ID header or generated, and a per-request
// logger that carries it. Handlers fetch that logger with FromContext, so all lines of one request can be grouped.
// When the request finishes a single completion line with the latency, status and path is written.
package httplog
