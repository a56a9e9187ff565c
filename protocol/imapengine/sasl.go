package imapengine

import (
	"encoding/base64"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// Sasl is the capability call spec §6 describes: the engine treats SASL
// mechanics as an external collaborator and only needs challenge/response.
type Sasl interface {
	// Challenge computes the client response to a base64-decoded server
	// challenge token (empty for the initial response).
	Challenge(token []byte) ([]byte, error)
	Authenticated() bool
	Mechanism() string
}

// AuthenticateSASL drives `AUTHENTICATE <mech>` using the plus-callback path
// (spec §4.E step 3: "the command carries a plus-callback ... invoke it with
// the rest of the line").
func (e *Engine) AuthenticateSASL(s Sasl) error {
	if e.Sasl == nil {
		e.Sasl = s
	}
	if !e.supportsAuth(s.Mechanism()) {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "server does not advertise AUTH=%s", s.Mechanism())
	}

	cmd := &Command{Untagged: map[string]UntaggedHandler{}}
	parts, err := Build(e.HasLiteralPlus(), DirAtom{"AUTHENTICATE "}, DirAtom{s.Mechanism()})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	cmd.Plus = func(e *Engine, cmd *Command, rest string) error {
		rest = strings.TrimSpace(rest)
		var token []byte
		if rest != "" {
			decoded, derr := base64.StdEncoding.DecodeString(rest)
			if derr != nil {
				return mailerr.Wrap(mailerr.ServiceProtocolError, "malformed SASL challenge", derr)
			}
			token = decoded
		}
		resp, cerr := s.Challenge(token)
		if cerr != nil {
			return cerr
		}
		encoded := base64.StdEncoding.EncodeToString(resp)
		if _, err := e.out.WriteString(encoded + "\r\n"); err != nil {
			return err
		}
		return e.out.Flush()
	}

	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Result != ResultOK || !s.Authenticated() {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "AUTHENTICATE %s rejected by %s", s.Mechanism(), e.Host)
	}
	e.state = Authenticated
	return nil
}
