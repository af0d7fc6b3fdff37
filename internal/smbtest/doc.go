// Package smbtest provides an in-memory SMB2 file server that executes
// compound requests, for tests and for the dsmb CLI.
//
// The server keeps a small file tree, honours related-operation FileId
// inheritance inside a compound, grants leases and durable handles when
// enabled, and lets tests inject per-command failures. It is reachable
// through a Loopback transport or over NetBIOS-framed TCP with Listen.
package smbtest
