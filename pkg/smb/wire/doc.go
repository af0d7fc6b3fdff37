// Package wire contains the SMB2 command descriptors exchanged inside
// compound requests and their body codecs.
//
// Every request type implements Request. Requests that operate on an open
// handle also implement Targeted so the compound builder can bind them to
// the handle opened earlier in the same chain. Response bodies are decoded
// from a reply slice that starts at the command's own SMB2 header, which
// keeps the offset fields of the protocol (always measured from the header)
// directly usable.
//
// Both directions of every codec are provided: the client engine encodes
// requests and decodes responses, and the in-memory test server does the
// opposite with the same code.
//
// # FileID
//
// A FileID is either resolved (persistent/volatile pair returned by the
// server) or PendingFileID, the all-ones placeholder that tells the server
// to use the handle produced by the preceding CREATE of the same compound.
// The two are distinguished at the type level: only PendingFileID reports
// IsPending, and NewFileID always yields a resolved value.
package wire
