// Package imapengine implements the IMAP4rev1 command engine (spec §4.E):
// a tagged, pipelined request/response dispatcher driving the token stream
// (tokenizer.go) and command builder (builder.go) over a cancellable
// connection (protocol/netio).
package imapengine

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/eslider/mails/protocol/mailerr"
)

// State is the engine's connection/authentication state machine (spec §3).
type State int

const (
	Disconnected State = iota
	Connected
	PreAuth
	Authenticated
	Selected
	Idle
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case PreAuth:
		return "pre-auth"
	case Authenticated:
		return "authenticated"
	case Selected:
		return "selected"
	case Idle:
		return "idle"
	default:
		return "disconnected"
	}
}

// Capability is the negotiated extension bitmask (spec §6).
type Capability uint32

const (
	CapIMAP4 Capability = 1 << iota
	CapIMAP4rev1
	CapLiteralPlus
	CapNamespace
	CapUIDPlus
	CapStartTLS
	CapUnselect
	CapCondStore
	CapIdle
	CapXGWExtensions
	CapXGWMove
	CapUTF8Search
	CapStatus
)

var capabilityNames = map[string]Capability{
	"IMAP4":         CapIMAP4,
	"IMAP4REV1":     CapIMAP4rev1,
	"LITERAL+":      CapLiteralPlus,
	"NAMESPACE":     CapNamespace,
	"UIDPLUS":       CapUIDPlus,
	"STARTTLS":      CapStartTLS,
	"UNSELECT":      CapUnselect,
	"CONDSTORE":     CapCondStore,
	"IDLE":          CapIdle,
	"XGWEXTENSIONS": CapXGWExtensions,
	"XGWMOVE":       CapXGWMove,
}

// CommandStatus is a command's lifecycle stage (spec §3).
type CommandStatus int

const (
	StatusQueued CommandStatus = iota
	StatusActive
	StatusComplete
	StatusError
)

// CommandResult is a completed command's outcome.
type CommandResult int

const (
	ResultNone CommandResult = iota
	ResultOK
	ResultNO
	ResultBAD
)

// UntaggedHandler processes an untagged response whose first atom matches a
// key registered on Command.Untagged.
type UntaggedHandler func(e *Engine, cmd *Command, firstAtom Token) error

// PlusCallback handles a `+` continuation that is not a literal payload
// request (e.g. SASL AUTHENTICATE challenges).
type PlusCallback func(e *Engine, cmd *Command, rest string) error

// Command is an IMAP command: an immutable, ordered part list plus mutable
// lifecycle state (spec §3).
type Command struct {
	ID       int
	Tag      string
	Status   CommandStatus
	Result   CommandResult
	Parts    []Part
	Untagged map[string]UntaggedHandler
	Plus     PlusCallback
	Folder   Foldable
	// Verb names the command for engine state-machine purposes (SELECT,
	// EXAMINE, UNSELECT, CLOSE, LOGOUT, ...); optional for commands the
	// engine doesn't need to recognise.
	Verb string

	RespCodes []*RespCode
	Err       error

	// partIndex is the step loop's cursor into Parts.
	partIndex int
	// sentFirst records whether "<tag> " has been written yet.
	sentFirst bool
	// autoSelect marks a prequeued SELECT the engine itself injected.
	autoSelect bool
	// UserData is opaque caller state (e.g. "engine owns this prequeue").
	UserData any
}

// Reset clears a command back to queued state for retry (spec §4.E retry).
func (c *Command) Reset() {
	c.Tag = ""
	c.RespCodes = nil
	c.Result = ResultNone
	c.Status = StatusQueued
	c.partIndex = 0
	c.sentFirst = false
	c.Err = nil
}

var tagPrefixCounter atomic.Uint32

func nextTagPrefix() byte {
	n := tagPrefixCounter.Add(1) - 1
	return 'A' + byte(n%26)
}

// NamespaceEntry is one `("path" "sep")` pair from a NAMESPACE response.
type NamespaceEntry struct {
	Path      string
	Separator byte
}

// AlertFunc forwards ALERT response-code text to the session layer (spec §6
// Session.alert_user).
type AlertFunc func(msg string)

// Engine drives one IMAP connection (spec §3 IMAP Engine, §4.E).
type Engine struct {
	Host string

	stream *Stream
	out    *bufio.Writer
	closer io.Closer

	state        State
	capabilities Capability
	authTypes    map[string]bool
	level        Capability // CapIMAP4 or CapIMAP4rev1

	namespacePersonal []NamespaceEntry
	namespaceOther    []NamespaceEntry
	namespaceShared   []NamespaceEntry

	selected Foldable

	tagPrefix  byte
	tagCounter int

	queue  []*Command
	nextID int

	reconnecting bool
	Reconnect    func() error

	onAlert AlertFunc

	// Sasl is the optional SASL capability call (spec §6); nil disables
	// AUTHENTICATE support, falling back to plain LOGIN.
	Sasl Sasl
}

// connIO is the subset of netio.Conn the engine needs; satisfied by
// *netio.Conn in production and by fakes in tests.
type connIO interface {
	reader
	io.Writer
	io.Closer
}

// New constructs an engine around conn (already connected, not yet greeted).
// Using a single connIO for both the token stream and the output writer
// means a later STARTTLS upgrade (which swaps the connection's underlying
// net.Conn in place) is transparent to both.
func New(host string, conn connIO) *Engine {
	e := &Engine{
		Host:      host,
		stream:    NewStream(conn),
		out:       bufio.NewWriter(conn),
		closer:    conn,
		state:     Disconnected,
		authTypes: map[string]bool{},
		nextID:    1,
		tagPrefix: nextTagPrefix(),
	}
	return e
}

// Close tears down the underlying connection.
func (e *Engine) Close() error {
	e.state = Disconnected
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

func (e *Engine) State() State                { return e.state }
func (e *Engine) Capabilities() Capability    { return e.capabilities }
func (e *Engine) HasCapability(c Capability) bool { return e.capabilities&c != 0 }
func (e *Engine) Selected() Foldable          { return e.selected }

// HasLiteralPlus reports whether the builder should inline literals.
func (e *Engine) HasLiteralPlus() bool { return e.capabilities&CapLiteralPlus != 0 }

// nextTag assigns the engine's next monotonically increasing tag:
// <prefix><5-digit zero-padded counter>.
func (e *Engine) nextTag() string {
	e.tagCounter++
	return fmt.Sprintf("%c%05d", e.tagPrefix, e.tagCounter)
}

// Queue appends cmd to the FIFO tail, assigning id = nextid++ (wrapping
// INT_MAX back to 1).
func (e *Engine) Queue(cmd *Command) {
	cmd.ID = e.nextID
	e.advanceNextID()
	cmd.Status = StatusQueued
	e.queue = append(e.queue, cmd)
}

func (e *Engine) advanceNextID() {
	const maxInt32 = 1<<31 - 1
	if e.nextID >= maxInt32 {
		e.nextID = 1
	} else {
		e.nextID++
	}
}

// Prequeue inserts cmd at the FIFO head, giving it priority over all queued
// commands. Its id is (old head's id - 1); if that would be zero, the whole
// queue is renumbered 1..n and nextid reset to n+1 (spec §4.E, tested in §8).
func (e *Engine) Prequeue(cmd *Command) {
	cmd.Status = StatusQueued
	if len(e.queue) == 0 {
		cmd.ID = e.nextID
		e.advanceNextID()
		e.queue = append([]*Command{cmd}, e.queue...)
		return
	}

	headID := e.queue[0].ID
	if headID <= 1 {
		cmd.ID = 1
		e.queue = append([]*Command{cmd}, e.queue...)
		for i, c := range e.queue {
			c.ID = i + 1
		}
		e.nextID = len(e.queue) + 1
		return
	}
	cmd.ID = headID - 1
	e.queue = append([]*Command{cmd}, e.queue...)
}

// QueueLen reports the number of pending commands.
func (e *Engine) QueueLen() int { return len(e.queue) }

// popHead removes and returns the head of the queue.
func (e *Engine) popHead() *Command {
	if len(e.queue) == 0 {
		return nil
	}
	c := e.queue[0]
	e.queue = e.queue[1:]
	return c
}

// errDisconnected reports whether the connection looks gone (used by Iterate
// to decide whether to reconnect).
func (e *Engine) errDisconnected() bool {
	return e.state == Disconnected || (e.stream != nil && e.stream.Disconnected())
}

// Iterate processes one queued command to completion (or partial progress)
// and returns the id of the command it processed, 0 if the queue was empty,
// or -1 on error (spec §4.E "Callers poll completion...").
func (e *Engine) Iterate() (int, error) {
	if e.errDisconnected() && !e.reconnecting {
		e.reconnecting = true
		var err error
		if e.Reconnect != nil {
			err = e.Reconnect()
		} else {
			err = mailerr.New(mailerr.ServiceNotConnected, "no reconnect handler configured")
		}
		e.reconnecting = false
		if err != nil {
			head := e.popHead()
			if head != nil {
				head.Status = StatusError
				head.Err = err
			}
			return -1, err
		}
	}

	if err := e.maybePrequeueSelect(); err != nil {
		return -1, err
	}

	if len(e.queue) == 0 {
		return 0, nil
	}

	head := e.queue[0]
	id, err := e.processHead(0)
	if err != nil {
		return -1, err
	}
	_ = head
	return id, nil
}

// processHead drives the head command through step() with up to 3 retries
// (spec §4.E "Retry").
func (e *Engine) processHead(attempt int) (int, error) {
	head := e.queue[0]
	complete, err := e.step(head)
	if err != nil {
		if !e.reconnecting && attempt < 3 {
			head.Reset()
			return e.processHead(attempt + 1)
		}
		e.popHead()
		head.Status = StatusError
		head.Err = err
		e.state = Disconnected
		return -1, err
	}
	if complete {
		e.popHead()
		e.engineStateChange(head)
		if head.autoSelect && head.Result != ResultOK {
			next := e.popHead()
			if next != nil {
				next.Status = StatusComplete
				next.Result = head.Result
				next.RespCodes = head.RespCodes
				next.Err = mailerr.Newf(mailerr.FolderIllegalName, "auto-SELECT of folder failed for %s", e.Host)
			}
		}
	}
	return head.ID, nil
}

// maybePrequeueSelect implements auto-SELECT prequeuing (spec §4.E).
func (e *Engine) maybePrequeueSelect() error {
	if len(e.queue) == 0 {
		return nil
	}
	head := e.queue[0]
	if head.Folder == nil || head.autoSelect {
		return nil
	}
	if head.Verb == "SELECT" || head.Verb == "EXAMINE" {
		return nil
	}
	if e.state == Selected && e.selected == head.Folder {
		return nil
	}
	sel := e.buildSelect(head.Folder, true)
	sel.autoSelect = true
	sel.UserData = "engine-owns-prequeue"
	e.Prequeue(sel)
	return nil
}

// selectCounters is implemented by folder types that want EXISTS/RECENT
// counts from a SELECT/EXAMINE response (optional; checked via type switch).
type selectCounters interface {
	SetExists(uint32)
	SetRecent(uint32)
}

// buildSelect constructs a SELECT (or EXAMINE) command for folder.
func (e *Engine) buildSelect(folder Foldable, write bool) *Command {
	verb := "SELECT"
	if !write {
		verb = "EXAMINE"
	}
	parts, _ := Build(e.HasLiteralPlus(), DirAtom{verb + " "}, DirFolder{Folder: folder})
	cmd := &Command{Parts: parts, Folder: folder, Verb: verb, Untagged: map[string]UntaggedHandler{}}
	if counters, ok := folder.(selectCounters); ok {
		cmd.Untagged["EXISTS"] = func(e *Engine, cmd *Command, tok Token) error {
			counters.SetExists(tok.Num)
			return nil
		}
		cmd.Untagged["RECENT"] = func(e *Engine, cmd *Command, tok Token) error {
			counters.SetRecent(tok.Num)
			return nil
		}
	}
	return cmd
}
