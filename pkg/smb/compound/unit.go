package compound

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	// ErrEmptyUnit is returned when marshaling a unit without commands.
	ErrEmptyUnit = errors.New("compound: empty unit")

	// ErrBuildFailed reports a unit that cannot be assembled. Nothing is
	// sent for such a unit.
	ErrBuildFailed = errors.New("compound: build failed")
)

// TargetOpened is the target of a request that operates on the handle opened
// by the CREATE at the head of the same unit. It is the zero FileID; Chain
// replaces it with wire.PendingFileID.
var TargetOpened wire.FileID

// Position is the place of a command in its unit.
type Position uint8

const (
	PositionFirst Position = 1 << iota
	PositionMiddle
	PositionLast
)

func (p Position) String() string {
	switch p {
	case PositionFirst | PositionLast:
		return "single"
	case PositionFirst:
		return "first"
	case PositionMiddle:
		return "middle"
	case PositionLast:
		return "last"
	}
	return fmt.Sprintf("position(%d)", uint8(p))
}

// Command is one request of a unit together with the outcome of its reply.
type Command struct {
	Req      wire.Request
	Position Position

	// Set by Marshal.
	MessageID    uint64
	CreditCharge uint16

	// Set by Walk.
	Header *header.Header
	Status types.Status
	// Result is the decoded body. It is nil when the command failed or when
	// the reply carried an expected non-success status.
	Result wire.Response
	// ErrorBody is the SMB2 ERROR body of a reply without a regular body,
	// expected statuses included, when it decoded.
	ErrorBody *wire.ErrorResponse
	Err       error

	expected []types.Status
	walked   bool
}

// Command returns the SMB2 command of the request.
func (c *Command) Command() types.Command { return c.Req.Command() }

// Expect marks statuses that count as success with an empty result, such
// as STATUS_OBJECT_NAME_NOT_FOUND on an existence check.
func (c *Command) Expect(statuses ...types.Status) *Command {
	c.expected = append(c.expected, statuses...)
	return c
}

// Expected reports whether s was registered with Expect.
func (c *Command) Expected(s types.Status) bool {
	return slices.Contains(c.expected, s)
}

// Walked reports whether the reply of the command was located.
func (c *Command) Walked() bool { return c.walked }

// Succeeded reports whether the reply was located and produced no error.
func (c *Command) Succeeded() bool { return c.walked && c.Err == nil }

// Unit is an ordered chain of commands sent as one compound request.
type Unit struct {
	cmds   []*Command
	sealed bool
	replay bool

	discardOnce sync.Once
	discards    []func()
}

// Start begins a unit with req as its first command. The command is tagged
// FIRST|LAST until another command is chained after it.
func Start(req wire.Request) (*Unit, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrBuildFailed)
	}
	if t, ok := req.(wire.Targeted); ok && !t.Target().IsResolved() {
		return nil, fmt.Errorf("%w: %s at head of unit has no resolved target", ErrBuildFailed, req.Command())
	}
	u := &Unit{}
	u.cmds = append(u.cmds, &Command{Req: req, Position: PositionFirst | PositionLast})
	return u, nil
}

// Chain appends req. When last is true the unit is sealed and no further
// command may be chained.
func (u *Unit) Chain(req wire.Request, last bool) (*Command, error) {
	if u.sealed {
		return nil, fmt.Errorf("%w: unit already has its last command", ErrBuildFailed)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrBuildFailed)
	}
	if t, ok := req.(wire.Targeted); ok {
		if err := u.resolveTarget(t); err != nil {
			return nil, err
		}
	}

	tail := u.cmds[len(u.cmds)-1]
	tail.Position &^= PositionLast
	if tail.Position == 0 {
		tail.Position = PositionMiddle
	}

	c := &Command{Req: req, Position: PositionMiddle}
	if last {
		c.Position = PositionLast
		u.sealed = true
	}
	u.cmds = append(u.cmds, c)
	return c, nil
}

func (u *Unit) resolveTarget(t wire.Targeted) error {
	target := t.Target()
	switch {
	case target.IsResolved():
		return nil
	case !u.opens():
		return fmt.Errorf("%w: %s refers to the opened handle but the unit does not start with CREATE",
			ErrBuildFailed, t.Command())
	case target.IsUnset():
		t.SetTarget(wire.PendingFileID)
	}
	return nil
}

func (u *Unit) opens() bool {
	return u.cmds[0].Req.Command() == types.CommandCreate
}

// Commands returns the commands in order.
func (u *Unit) Commands() []*Command { return u.cmds }

// At returns the i-th command.
func (u *Unit) At(i int) *Command { return u.cmds[i] }

// First returns the first command.
func (u *Unit) First() *Command { return u.cmds[0] }

// Len returns the number of commands.
func (u *Unit) Len() int { return len(u.cmds) }

// Sealed reports whether a LAST command has been chained.
func (u *Unit) Sealed() bool { return u.sealed }

// SetReplay flags every command of the unit as a replayed operation.
func (u *Unit) SetReplay(replay bool) { u.replay = replay }

// Replay reports whether the unit is flagged as a replay.
func (u *Unit) Replay() bool { return u.replay }

// Shape returns the command names joined by '+', e.g. CREATE+QUERY_INFO+CLOSE.
func (u *Unit) Shape() string {
	names := make([]string, len(u.cmds))
	for i, c := range u.cmds {
		names[i] = c.Command().String()
	}
	return strings.Join(names, "+")
}

// OnDiscard registers fn to run if the unit is abandoned without its
// replies being walked.
func (u *Unit) OnDiscard(fn func()) {
	u.discards = append(u.discards, fn)
}

// Discard runs the OnDiscard hooks. It is safe to call more than once.
func (u *Unit) Discard() {
	u.discardOnce.Do(func() {
		for _, fn := range u.discards {
			fn()
		}
	})
}

// Err returns the first command error in unit order.
func (u *Unit) Err() error {
	for _, c := range u.cmds {
		if c.Err != nil {
			return c.Err
		}
	}
	return nil
}
