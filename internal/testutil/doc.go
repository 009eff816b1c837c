// Package testutil contains helper builders and scripted participants used
// across tests to reduce boilerplate when constructing participants, flow
// configurations and deterministic model answers. They are not intended for
// production usage.
package testutil
