package popengine

import (
	"io"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// State is the POP3 session state machine (spec §4.F): Connect -> Auth ->
// Transaction -> Update.
type State int

const (
	StateDisconnected State = iota
	StateConnect
	StateAuth
	StateTransaction
	StateUpdate
)

func (s State) String() string {
	switch s {
	case StateConnect:
		return "connect"
	case StateAuth:
		return "auth"
	case StateTransaction:
		return "transaction"
	case StateUpdate:
		return "update"
	default:
		return "disconnected"
	}
}

// Capability is the CAPA-derived bitmask (spec §4.F).
type Capability uint32

const (
	CapAPOP Capability = 1 << iota
	CapLoginDelay
	CapPipelining
	CapRespCodes
	CapSASL
	CapSTLS
	CapTOP
	CapUIDL
	CapUSER
)

// capaResetMask covers every bit CAPA re-derives; CapAPOP is learned at the
// greeting and survives a CAPA re-parse.
const capaResetMask = CapLoginDelay | CapPipelining | CapRespCodes | CapSASL | CapSTLS | CapTOP | CapUIDL | CapUSER

// RespKind classifies a single-line POP3 response (spec §4.F).
type RespKind int

const (
	RespOK RespKind = iota
	RespErr
	RespContinue
	RespProtocolError
)

// Handler is a command's callback: it receives the classified response and
// the rest-of-line text, and for multi-line responses pulls further lines
// via the engine's Line/EnterData API itself.
type Handler func(e *Engine, cmd *Command, kind RespKind, rest string) error

// CommandStatus is a POP command's lifecycle stage (spec §3 "Command (POP)").
type CommandStatus int

const (
	StatusQueued CommandStatus = iota
	StatusActive
	StatusContinue
	StatusErr
	StatusOK
	StatusProtocolError
)

// Command is a single CRLF-terminated POP3 command string plus its handler
// (spec §3 "Command (POP)" — no part list, no literal payloads: POP commands
// are one line).
type Command struct {
	Line     string
	Handler  Handler
	UserData any

	ID     int
	Status CommandStatus
	Err    error
}

// reader is shared with linestream.go.
type connIO interface {
	reader
	io.Writer
	io.Closer
}

// Engine drives one POP3 connection (spec §4.F).
type Engine struct {
	Host string

	conn   connIO
	stream *Stream

	state        State
	capabilities Capability
	authTypes    map[string]bool
	loginDelay   uint32
	apopStamp    string

	queue  []*Command
	nextID int

	reconnecting bool
	Reconnect    func() error
}

// New constructs an engine around conn (already connected, not yet greeted).
func New(host string, conn connIO) *Engine {
	return &Engine{
		Host:      host,
		conn:      conn,
		stream:    NewStream(conn),
		state:     StateDisconnected,
		authTypes: map[string]bool{},
		nextID:    1,
	}
}

// Close tears down the underlying connection.
func (e *Engine) Close() error {
	e.state = StateDisconnected
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func (e *Engine) State() State             { return e.state }
func (e *Engine) Capabilities() Capability { return e.capabilities }
func (e *Engine) HasCapability(c Capability) bool { return e.capabilities&c != 0 }
func (e *Engine) LoginDelay() uint32       { return e.loginDelay }

// AuthTypes reports the SASL mechanisms CAPA advertised.
func (e *Engine) AuthTypes() []string {
	out := make([]string, 0, len(e.authTypes))
	for k := range e.authTypes {
		out = append(out, k)
	}
	return out
}

// Queue appends cmd to the FIFO tail (spec §4.E's id/wrap discipline is
// shared verbatim; POP has no prequeue, only one command in flight).
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

// QueueLen reports the number of pending commands.
func (e *Engine) QueueLen() int { return len(e.queue) }

func (e *Engine) errDisconnected() bool {
	return e.state == StateDisconnected || (e.stream != nil && e.stream.disconnected)
}

// Iterate processes exactly one queued command per call, with no pipelining
// (spec §4.F "single-command-at-a-time dispatcher"). Returns the id of the
// command it processed, 0 if the queue was empty, or -1 on error.
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
				head.Status = StatusErr
				head.Err = err
			}
			return -1, err
		}
	}

	if len(e.queue) == 0 {
		return 0, nil
	}
	cmd := e.popHead()
	cmd.Status = StatusActive
	if err := e.dispatch(cmd); err != nil {
		cmd.Status = StatusErr
		if cmd.Err == nil {
			cmd.Err = err
		}
		e.state = StateDisconnected
		return -1, err
	}
	return cmd.ID, nil
}

func (e *Engine) popHead() *Command {
	if len(e.queue) == 0 {
		return nil
	}
	c := e.queue[0]
	e.queue = e.queue[1:]
	return c
}

// dispatch writes cmd's line, reads the classified response, and invokes
// cmd.Handler (spec §4.F "generic handler callback receives the rest-of-line").
func (e *Engine) dispatch(cmd *Command) error {
	if _, err := e.conn.Write([]byte(cmd.Line)); err != nil {
		return err
	}
	line, incomplete, err := e.stream.Line()
	if err != nil {
		return err
	}
	if incomplete {
		return mailerr.Newf(mailerr.ServiceProtocolError, "connection closed while awaiting response from %s", e.Host)
	}
	kind, rest := classifyResponse(line)
	if kind == RespProtocolError {
		return mailerr.Newf(mailerr.ServiceProtocolError, "unexpected response from POP3 server %s: %s", e.Host, line)
	}

	if cmd.Handler != nil {
		if herr := cmd.Handler(e, cmd, kind, rest); herr != nil {
			cmd.Status = StatusErr
			cmd.Err = herr
			return herr
		}
	}

	switch kind {
	case RespOK:
		cmd.Status = StatusOK
	case RespContinue:
		cmd.Status = StatusContinue
	case RespErr:
		cmd.Status = StatusErr
		if cmd.Err == nil {
			cmd.Err = mailerr.Newf(mailerr.ServiceProtocolError, "%s-ERR %s", cmd.Line, rest)
		}
	}
	return nil
}

// classifyResponse implements spec §4.F's line classification: `+OK[SP
// rest]`, `-ERR[SP rest]`, `+SP rest` (continuation, AUTH only), or protocol
// error.
func classifyResponse(line string) (RespKind, string) {
	switch {
	case hasPrefixFold(line, "+OK"):
		return RespOK, trimAfterPrefix(line, len("+OK"))
	case hasPrefixFold(line, "-ERR"):
		return RespErr, trimAfterPrefix(line, len("-ERR"))
	case len(line) > 0 && line[0] == '+':
		return RespContinue, trimAfterPrefix(line, 1)
	default:
		return RespProtocolError, line
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return foldEqual(s[:len(prefix)], prefix)
}

func foldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func trimAfterPrefix(line string, n int) string {
	rest := line[n:]
	for len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t') {
		rest = rest[1:]
	}
	return rest
}

// drainQueue iterates until the queue empties or an error occurs; used by
// the synchronous connect-sequence helpers in connect.go.
func (e *Engine) drainQueue() error {
	for e.QueueLen() > 0 {
		if _, err := e.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// ReadLine exposes the line stream to the folder layer for multi-line
// response bodies that aren't byte-transformed (LIST, UIDL).
func (e *Engine) ReadLine() (string, bool, error) {
	return e.stream.Line()
}

// ReadTextLines reads a simple multi-line text response body (LIST, UIDL)
// until the lone "." terminator, mirroring readCapaLines' loop. A leading
// ".." is un-stuffed to "." per RFC 1939's general byte-stuffing rule, which
// CAPA's fixed-format lines never trigger but LIST/UIDL's mailbox-derived
// text in principle could.
func (e *Engine) ReadTextLines() ([]string, error) {
	var lines []string
	for {
		line, incomplete, err := e.stream.Line()
		if err != nil {
			return lines, err
		}
		if incomplete {
			return lines, mailerr.Newf(mailerr.ServiceProtocolError, "connection closed mid-response from %s", e.Host)
		}
		if line == "." {
			return lines, nil
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		lines = append(lines, line)
	}
}

// EnterData switches the stream into Data mode for a RETR/TOP payload.
func (e *Engine) EnterData() {
	e.stream.EnterData()
}

// ReadData pulls the next chunk of a Data-mode payload (spec §4.C).
func (e *Engine) ReadData() ([]byte, error) {
	return e.stream.Read()
}

// EOD reports whether the last ReadData call consumed the end-of-data marker.
func (e *Engine) EOD() bool { return e.stream.EOD() }
