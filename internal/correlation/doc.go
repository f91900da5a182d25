// Package correlation holds the request-scoped correlation identifier.
//
// The identifier travels inside a context.Context, so every piece of code that
// runs on behalf of a request can read it without extra parameters, and
// concurrently handled requests never see each other's value.
package correlation
