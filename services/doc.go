// Package services holds infrastructure-backed implementations of the
// server's storage interfaces. The PostgreSQL trust store persists
// which artifact identities may claim which version and variant; the
// in-memory variant in the server package covers tests and
// single-process deployments.
package services
