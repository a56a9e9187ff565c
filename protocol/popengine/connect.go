package popengine

import (
	"crypto/md5"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// Greet reads the server's greeting line, requires a `+OK` prefix, and
// optionally extracts an APOP timestamp (spec §4.F "take_stream").
func (e *Engine) Greet() error {
	e.state = StateConnect
	line, incomplete, err := e.stream.Line()
	if err != nil {
		return err
	}
	if incomplete || !hasPrefixFold(line, "+OK") {
		return mailerr.Newf(mailerr.ServiceProtocolError, "no greeting from POP3 server %s", e.Host)
	}
	if stamp := extractAPOPTimestamp(line); stamp != "" {
		e.apopStamp = stamp
		e.capabilities |= CapAPOP
	}
	e.state = StateAuth
	return nil
}

// extractAPOPTimestamp pulls the `<...>` banner token used as the APOP
// challenge, or "" if the greeting carries none.
func extractAPOPTimestamp(line string) string {
	start := strings.IndexByte(line, '<')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(line[start:], '>')
	if end < 0 {
		return ""
	}
	return line[start : start+end+1]
}

// User sends USER <name>, the first half of plaintext login.
func (e *Engine) User(name string) error {
	cmd := &Command{Line: fmt.Sprintf("USER %s\r\n", name)}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Status != StatusOK {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "USER rejected by %s", e.Host)
	}
	return nil
}

// Pass sends PASS <password>, completing plaintext login.
func (e *Engine) Pass(password string) error {
	cmd := &Command{Line: fmt.Sprintf("PASS %s\r\n", password)}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Status != StatusOK {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "PASS rejected by %s", e.Host)
	}
	e.state = StateTransaction
	return nil
}

// Apop authenticates via APOP name digest, where digest = MD5(timestamp +
// password) in lowercase hex (spec §4.F "optionally extract an APOP
// timestamp").
func (e *Engine) Apop(name, password string) error {
	if e.apopStamp == "" {
		return mailerr.New(mailerr.ServiceCantAuthenticate, "server did not offer an APOP timestamp")
	}
	sum := md5.Sum([]byte(e.apopStamp + password))
	digest := hex.EncodeToString(sum[:])
	cmd := &Command{Line: fmt.Sprintf("APOP %s %s\r\n", name, digest)}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Status != StatusOK {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "APOP rejected by %s", e.Host)
	}
	e.state = StateTransaction
	return nil
}

// Sasl is the capability call spec §6 describes, mirroring imapengine's
// interface of the same shape: the engine treats SASL mechanics as an
// external collaborator and only needs challenge/response.
type Sasl interface {
	Mechanism() string
	Challenge(token []byte) ([]byte, error)
	Authenticated() bool
}

// AuthenticateSASL drives `AUTH <mech>` (RFC 5034): the server's `+
// <base64>` continuation lines are decoded and handed to s.Challenge until
// it replies `+OK`/`-ERR`.
func (e *Engine) AuthenticateSASL(s Sasl) error {
	if !e.authTypes[strings.ToUpper(s.Mechanism())] {
		return mailerr.Newf(mailerr.ServiceCantAuthenticate, "server does not advertise AUTH=%s", s.Mechanism())
	}
	ir, err := s.Challenge(nil)
	if err != nil {
		return err
	}
	line := "AUTH " + s.Mechanism()
	if ir != nil {
		line += " " + base64.StdEncoding.EncodeToString(ir)
	}
	if _, err := e.conn.Write([]byte(line + "\r\n")); err != nil {
		return err
	}
	for {
		respLine, incomplete, err := e.stream.Line()
		if err != nil {
			return err
		}
		if incomplete {
			return mailerr.Newf(mailerr.ServiceProtocolError, "connection closed mid-AUTH from %s", e.Host)
		}
		kind, rest := classifyResponse(respLine)
		switch kind {
		case RespOK:
			if !s.Authenticated() {
				return mailerr.Newf(mailerr.ServiceCantAuthenticate, "AUTH %s reported success but client disagrees", s.Mechanism())
			}
			e.state = StateTransaction
			return nil
		case RespErr:
			return mailerr.Newf(mailerr.ServiceCantAuthenticate, "AUTH %s rejected by %s: %s", s.Mechanism(), e.Host, rest)
		case RespContinue:
			token, derr := base64.StdEncoding.DecodeString(rest)
			if derr != nil {
				return mailerr.Wrap(mailerr.ServiceProtocolError, "malformed SASL challenge", derr)
			}
			resp, cerr := s.Challenge(token)
			if cerr != nil {
				return cerr
			}
			encoded := base64.StdEncoding.EncodeToString(resp)
			if _, err := e.conn.Write([]byte(encoded + "\r\n")); err != nil {
				return err
			}
		default:
			return mailerr.Newf(mailerr.ServiceProtocolError, "unexpected response to AUTH %s from %s: %s", s.Mechanism(), e.Host, respLine)
		}
	}
}

// StartTLS issues STLS and, on success, upgrades the underlying connection
// in place (spec §6 treats TLS as a capability call; conn must additionally
// satisfy the TLS-upgrader duck type, as *netio.Conn does).
func (e *Engine) StartTLS(cfg *tls.Config) error {
	if !e.HasCapability(CapSTLS) {
		return mailerr.New(mailerr.ServiceUnavailable, "server did not advertise STLS")
	}
	cmd := &Command{Line: "STLS\r\n"}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	if cmd.Status != StatusOK {
		return mailerr.Newf(mailerr.ServiceUnavailable, "STLS rejected by %s", e.Host)
	}
	upgrader, ok := e.conn.(interface{ UpgradeTLS(*tls.Config) error })
	if !ok {
		return mailerr.New(mailerr.ServiceUnavailable, "connection does not support TLS upgrade")
	}
	if err := upgrader.UpgradeTLS(cfg); err != nil {
		return err
	}
	// Capability state is no longer trustworthy post-upgrade per RFC 2595;
	// caller is expected to re-issue CAPA.
	e.capabilities &^= capaResetMask
	return nil
}

// Quit sends QUIT, entering Update state.
func (e *Engine) Quit() error {
	cmd := &Command{Line: "QUIT\r\n"}
	e.state = StateUpdate
	e.Queue(cmd)
	return e.drainQueue()
}

// Stat sends STAT and returns (count, totalOctets).
func (e *Engine) Stat() (int, int64, error) {
	var count int
	var octets int64
	cmd := &Command{Line: "STAT\r\n"}
	cmd.Handler = func(eng *Engine, c *Command, kind RespKind, rest string) error {
		if kind != RespOK {
			return nil
		}
		var n int
		var o int64
		if _, err := fmt.Sscanf(rest, "%d %d", &n, &o); err != nil {
			return mailerr.Wrap(mailerr.ServiceProtocolError, "malformed STAT response", err)
		}
		count, octets = n, o
		return nil
	}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return 0, 0, err
	}
	if cmd.Status != StatusOK {
		return 0, 0, mailerr.Newf(mailerr.ServiceProtocolError, "STAT rejected by %s", e.Host)
	}
	return count, octets, nil
}
