// Package store defines interfaces for persistence dependencies (job
// repositories and per-site statistics). Implementations live in
// subpackages; this package must not import database drivers or concrete
// clients.
package store
