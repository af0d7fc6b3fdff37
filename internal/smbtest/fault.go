package smbtest

import (
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Call describes a command about to be executed.
type Call struct {
	Header *header.Header
	// Request is the decoded request, with a related FileId already
	// replaced by the handle it refers to.
	Request wire.Request
	// Index is the position of the command in its compound.
	Index int
	// Path is the path of the CREATE name or of the targeted handle.
	Path string
}

// Command returns the command of the call.
func (c *Call) Command() types.Command { return c.Header.Command }

// Fault alters the reply of one command.
type Fault struct {
	// Status, when set, fails the command with this status without
	// executing it.
	Status types.Status
	// Body replaces the encoded reply body after execution.
	Body []byte
	// CorruptHeader zeroes the protocol id of the reply header. The reply
	// can still be located.
	CorruptHeader bool
	// BreakChain writes an unusable NextCommand into the reply, so the
	// replies after it cannot be located.
	BreakChain bool
}

// FaultFunc chooses a fault for a call. Returning nil executes the call
// normally.
type FaultFunc func(c *Call) *Fault

// FailCommand returns a FaultFunc failing every cmd whose path matches
// path (any path when empty) with status.
func FailCommand(cmd types.Command, path string, status types.Status) FaultFunc {
	return func(c *Call) *Fault {
		if c.Command() != cmd || (path != "" && key(path) != key(c.Path)) {
			return nil
		}
		return &Fault{Status: status}
	}
}

// Record is the server-side trace of one executed command.
type Record struct {
	Command   types.Command
	MessageID uint64
	Index     int
	Related   bool
	Replay    bool
	// FileID is the handle the command operated on, or the handle a
	// CREATE returned.
	FileID wire.FileID
	Path   string
	Status types.Status
}
