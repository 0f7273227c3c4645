// Package identity derives stable rate-limit keys from a caller's identity and
// request fingerprint.
//
// A key is built from the authenticated principal when one is present and
// from the network origin otherwise, combined with a short hash of the
// request signature and any extra attributes. The same caller with the same
// context always produces the same key, so counters and blocks follow the
// caller rather than the connection.
//
// Key format:
//
//	<prefix>:p:<tenant>/<principal>:<fingerprint>
//	<prefix>:o:<origin>:<fingerprint>
//
// where fingerprint is the first 16 hex characters of SHA-256 over the
// canonical JSON of the signature and attributes.
package identity
