package compound

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	// ErrReplyMismatch reports a reply whose header does not answer the
	// command at the same position.
	ErrReplyMismatch = errors.New("compound: reply does not match request")

	// ErrReplyMissing is recorded on commands whose reply could not be
	// located because the walk aborted earlier.
	ErrReplyMissing = errors.New("compound: reply not located")
)

// Stream yields the replies of one compound response in order.
type Stream interface {
	// Reply returns the current reply, starting at its SMB2 header.
	Reply() []byte
	// Advance moves to the next reply of the chain.
	Advance() error
}

// Observer receives walk events.
type Observer interface {
	// HeaderParsed is called once the header of a command's reply parsed,
	// whatever its status.
	HeaderParsed(c *Command, h *header.Header)
	// Completed is called after the command's outcome is final.
	Completed(c *Command)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnHeader    func(c *Command, h *header.Header)
	OnCompleted func(c *Command)
}

// HeaderParsed implements Observer.
func (o ObserverFuncs) HeaderParsed(c *Command, h *header.Header) {
	if o.OnHeader != nil {
		o.OnHeader(c, h)
	}
}

// Completed implements Observer.
func (o ObserverFuncs) Completed(c *Command) {
	if o.OnCompleted != nil {
		o.OnCompleted(c)
	}
}

// stage is one step of processing a reply. A fatal stage failure ends the
// walk; any other failure ends processing of the current command only.
type stage struct {
	name  string
	fatal bool
	run   func(w *walker, i int, c *Command) error
}

var stages = []stage{
	{name: "locate", fatal: true, run: (*walker).locate},
	{name: "header", run: (*walker).parseHeader},
	{name: "status", run: (*walker).checkStatus},
	{name: "body", run: (*walker).decodeBody},
}

type walker struct {
	stream Stream
	obs    Observer
	hdr    *header.Header
	done   bool // the status stage settled the outcome
}

// Walk processes the replies for every command of u. It returns the first
// error in command order; per-command outcomes are left on the commands.
func Walk(stream Stream, u *Unit, obs Observer) error {
	w := &walker{stream: stream, obs: obs}
	for i, c := range u.cmds {
		w.hdr, w.done = nil, false
		if err := w.runStages(i, c); err != nil {
			for _, rest := range u.cmds[i:] {
				if rest.Err == nil {
					rest.Err = fmt.Errorf("%w: %v", ErrReplyMissing, err)
				}
			}
			break
		}
	}
	return u.Err()
}

// runStages runs the stages for one command and returns only fatal errors.
func (w *walker) runStages(i int, c *Command) error {
	for _, s := range stages {
		if w.done {
			break
		}
		err := s.run(w, i, c)
		if err == nil {
			continue
		}
		if s.fatal {
			logger.Debug("Compound walk aborted",
				logger.KeyCommand, c.Command().String(),
				"stage", s.name,
				logger.KeyError, err)
			return err
		}
		c.Err = err
		break
	}
	if c.walked && w.obs != nil {
		w.obs.Completed(c)
	}
	return nil
}

func (w *walker) locate(i int, c *Command) error {
	if i > 0 {
		if err := w.stream.Advance(); err != nil {
			return err
		}
	}
	c.walked = true
	return nil
}

func (w *walker) parseHeader(_ int, c *Command) error {
	h, err := header.Parse(w.stream.Reply())
	if err != nil {
		return fmt.Errorf("%s reply header: %w", c.Command(), err)
	}
	w.hdr = h
	c.Header = h
	c.Status = h.Status
	if w.obs != nil {
		w.obs.HeaderParsed(c, h)
	}
	if h.Command != c.Command() {
		return fmt.Errorf("%w: got %s for %s", ErrReplyMismatch, h.Command, c.Command())
	}
	if h.MessageID != c.MessageID {
		return fmt.Errorf("%w: message id %d for %d", ErrReplyMismatch, h.MessageID, c.MessageID)
	}
	return nil
}

func (w *walker) checkStatus(_ int, c *Command) error {
	status := w.hdr.Status
	if status.CarriesBody(c.Command()) {
		return nil
	}
	w.done = true
	if body, err := wire.DecodeErrorResponse(w.stream.Reply()); err == nil {
		c.ErrorBody = body
	}
	if c.Expected(status) {
		logger.Debug("Compound command returned expected status",
			logger.KeyCommand, c.Command().String(),
			logger.Status(status))
		return nil
	}
	return types.NewStatusError(c.Command(), status)
}

func (w *walker) decodeBody(_ int, c *Command) error {
	resp, err := wire.DecodeResponse(c.Command(), w.stream.Reply())
	if err != nil {
		return err
	}
	c.Result = resp
	return nil
}
