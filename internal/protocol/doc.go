// Package protocol owns the wire contract spoken on the MLLP listener.
//
// Ownership boundary:
// - mllp envelope framing (start block, end block, carriage return)
// - hl7 acknowledgment construction and control id extraction
// - shared fault classes for per-connection error handling
package protocol
