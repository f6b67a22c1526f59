// Package store defines interfaces for the run-progress read model consumed
// by the HTTP API. Implementations live in other packages; this package must
// not import concrete clients.
package store
