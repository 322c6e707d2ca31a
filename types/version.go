package types

// Version is the canonical project version.
// The CLI, the relay wire contract and the journal record layout share this
// version (lockstep versioning).
const Version = "0.3.0"
