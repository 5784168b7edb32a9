// Package testutil provides deterministic test fixtures for the
// verification protocol: a fake KEM that needs no lattice math, payload
// generators with the option pattern, and small random-data helpers.
//
// The fake exchange is selected only by explicit test wiring; nothing
// in production code refers to this package.
package testutil
