// Package client implements the proving side of the integrity
// protocol: it fetches the server's KEM public key, encapsulates a
// fresh shared secret, encrypts the integrity payload and submits the
// verification request.
//
// Every request carries a brand-new encapsulation. Infrastructure
// failures are therefore retryable only by building a new request;
// resending a captured one is rejected by the server's replay guard.
package client
