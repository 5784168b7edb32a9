// Package cmd holds the deployable commands of the verification
// system.
//
// # Commands
//
// server: runs the integrity verification server. Holds the KEM key
// ring, answers GET /public-key and POST /verify, and consults either
// an in-memory or a PostgreSQL-backed trust store.
//
//	go run ./cmd/server --addr=:8080 --trust-records=records.json
//	go run ./cmd/server --postgres-host=localhost --postgres-db=trust
//
// client: performs one verification exchange against a running server
// and prints the decision. Exits 0 when the payload is verified, 1 when
// it is not, 2 on infrastructure errors.
//
//	go run ./cmd/client --server=http://localhost:8080 \
//	    --merkle-root=<64 hex> --signer-fingerprint=<64 hex> \
//	    --version=1.0.0 --variant=release
package cmd
