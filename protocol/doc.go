// Package protocol defines the wire entities of the AnchorPQ integrity
// verification protocol and the validation rules both parties apply to
// them.
//
// The protocol is a single round trip. The client fetches the server's
// public key descriptor, encapsulates a shared secret against it, derives
// a symmetric key, encrypts an IntegrityPayload, and posts a
// VerificationRequest. The server answers with a VerificationResponse
// carrying a trust decision and a reason code.
//
// Binary fields travel base64-encoded; the request timestamp travels in
// clear text so the server can reject stale requests before doing any
// cryptographic work.
package protocol
