package imapengine

import (
	"crypto/tls"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// Greet reads the server's initial untagged greeting (`* OK ...`, `*
// PREAUTH ...`, or `* BYE ...`) and transitions state accordingly.
func (e *Engine) Greet() error {
	e.state = Connected
	tok, err := e.stream.NextToken()
	if err != nil {
		return err
	}
	if tok.Kind != Char || tok.Ch != '*' {
		return mailerr.Newf(mailerr.ServiceProtocolError, "no greeting from IMAP server %s", e.Host)
	}
	return e.handleUntagged1(&Command{Untagged: map[string]UntaggedHandler{}})
}

// Capability sends a CAPABILITY command synchronously (used during the
// connect sequence before any commands are queued).
func (e *Engine) Capability() error {
	cmd := &Command{Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"CAPABILITY"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	return e.drainQueue()
}

// Login authenticates via plain LOGIN (spec §6; SASL AUTHENTICATE is offered
// through AuthenticateSASL when e.Sasl is set and a matching mechanism is
// advertised).
func (e *Engine) Login(user, password string) error {
	if e.state != Connected && e.state != PreAuth {
		return mailerr.New(mailerr.ServiceNotConnected, "cannot LOGIN outside connected/pre-auth state")
	}
	cmd := &Command{Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"LOGIN "}, DirMaybeQuoted{Value: user}, DirAtom{" "}, DirMaybeQuoted{Value: password})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Result != ResultOK {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "LOGIN rejected by %s", e.Host)
	}
	e.state = Authenticated
	return nil
}

// StartTLS issues STARTTLS and, on success, upgrades the underlying
// connection in place (spec §6 treats TLS as a capability call; the conn
// passed to New must additionally satisfy the TLS-upgrader duck type, as
// *netio.Conn does).
func (e *Engine) StartTLS(cfg *tls.Config) error {
	if !e.HasCapability(CapStartTLS) {
		return mailerr.New(mailerr.ServiceUnavailable, "server did not advertise STARTTLS")
	}
	cmd := &Command{Verb: "STARTTLS", Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"STARTTLS"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Result != ResultOK {
		return mailerr.Newf(mailerr.ServiceUnavailable, "STARTTLS rejected by %s", e.Host)
	}
	upgrader, ok := e.closer.(interface{ UpgradeTLS(*tls.Config) error })
	if !ok {
		return mailerr.New(mailerr.ServiceUnavailable, "connection does not support TLS upgrade")
	}
	if err := upgrader.UpgradeTLS(cfg); err != nil {
		return err
	}
	// Capabilities must be re-derived post-upgrade per RFC 3501 §6.2.1;
	// caller is expected to re-issue CAPABILITY.
	e.capabilities = 0
	e.authTypes = map[string]bool{}
	return nil
}

// Select opens folder read-write (or read-only via EXAMINE), synchronously.
// Folder operations normally get this for free via auto-SELECT prequeuing;
// this direct form is for the folder layer's explicit open() sequence.
func (e *Engine) Select(folder Foldable, write bool) error {
	cmd := e.buildSelect(folder, write)
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Result != ResultOK {
		return mailerr.Newf(mailerr.StoreNoSuchFolder, "SELECT/EXAMINE of %q rejected by %s", folder.ServerName(), e.Host)
	}
	applySelectRespCodes(folder, cmd.RespCodes)
	return nil
}

// selectRespSetters is implemented by folder types that want the
// UIDVALIDITY/UIDNEXT/UNSEEN response codes from a SELECT/EXAMINE reply.
type selectRespSetters interface {
	SetUIDValidity(uint32)
	SetUIDNext(uint32)
	SetUnseen(uint32)
}

func applySelectRespCodes(folder Foldable, codes []*RespCode) {
	setters, ok := folder.(selectRespSetters)
	if !ok {
		return
	}
	for _, rc := range codes {
		switch rc.Kind {
		case RCUIDValidity:
			setters.SetUIDValidity(rc.U32)
		case RCUIDNext:
			setters.SetUIDNext(rc.U32)
		case RCUnseen:
			setters.SetUnseen(rc.U32)
		}
	}
}

// CloseMailbox issues CLOSE (expunging deleted messages) on the selected
// folder.
func (e *Engine) CloseMailbox() error {
	cmd := &Command{Verb: "CLOSE", Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"CLOSE"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	return e.drainQueue()
}

// Unselect leaves the selected folder without expunging (spec §4.H close:
// "UNSELECT if supported, else nothing").
func (e *Engine) Unselect() error {
	if !e.HasCapability(CapUnselect) {
		e.selected = nil
		e.state = Authenticated
		return nil
	}
	cmd := &Command{Verb: "UNSELECT", Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"UNSELECT"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	return e.drainQueue()
}

// Do queues cmd and drains the queue, for simple command/response
// round-trips built by callers above imapengine (spec §4.H/§4.I helpers).
func (e *Engine) Do(cmd *Command) error {
	e.Queue(cmd)
	return e.drainQueue()
}

// Logout sends LOGOUT and waits for the server to close the connection.
func (e *Engine) Logout() error {
	cmd := &Command{Verb: "LOGOUT", Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"LOGOUT"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	e.Queue(cmd)
	return e.drainQueue()
}

// drainQueue iterates until the queue empties or an error occurs; used for
// the synchronous connect-sequence helpers above. Folder-operation callers
// normally drive Iterate() themselves from their own event loop.
func (e *Engine) drainQueue() error {
	for e.QueueLen() > 0 {
		if _, err := e.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// AuthTypes reports the SASL mechanisms the server advertised via AUTH=.
func (e *Engine) AuthTypes() []string {
	out := make([]string, 0, len(e.authTypes))
	for k := range e.authTypes {
		out = append(out, k)
	}
	return out
}

func (e *Engine) supportsAuth(mech string) bool {
	return e.authTypes[strings.ToUpper(mech)]
}
