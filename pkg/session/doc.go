// Package session keeps per-conversation message history in process memory.
//
// Each session is keyed by an opaque caller-supplied identifier and is
// created lazily on first reference, seeded with the system persona message.
// History lives only for the lifetime of the process; the store enforces a
// session cap and evicts idle sessions after a TTL.
package session
