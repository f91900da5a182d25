// Package server runs the HTTP service: a gorilla/mux router with the demo
// route, wrapped in the request logging middleware, and the server lifecycle
// with its startup and shutdown log lines.
package server
