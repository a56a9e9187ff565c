package imapengine

import (
	"fmt"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// step processes one part-loop iteration of cmd: write, flush, read
// responses until +/*/tag (spec §4.E "Step").
func (e *Engine) step(cmd *Command) (complete bool, err error) {
	for cmd.partIndex < len(cmd.Parts) {
		part := cmd.Parts[cmd.partIndex]

		if cmd.partIndex == 0 && !cmd.sentFirst {
			if cmd.Tag == "" {
				cmd.Tag = e.nextTag()
			}
			if _, err := e.out.WriteString(cmd.Tag + " "); err != nil {
				return false, err
			}
			cmd.sentFirst = true
		}
		if _, err := e.out.Write(part.Buf); err != nil {
			return false, err
		}
		// Only the last part has no literal; CRLF ends the command line.
		if part.Literal == nil {
			if _, err := e.out.WriteString("\r\n"); err != nil {
				return false, err
			}
		}
		if err := e.out.Flush(); err != nil {
			return false, err
		}

	readLoop:
		for {
			tok, terr := e.stream.NextToken()
			if terr != nil {
				return false, terr
			}
			switch {
			case tok.Kind == Char && tok.Ch == '+':
				rest, _ := e.stream.ReadLine()
				if part.Literal != nil {
					canon := true
					if sl, ok := part.Literal.(StringLiteral); ok {
						canon = sl.Canon
					}
					if err := part.Literal.WriteTo(e.out, canon); err != nil {
						return false, err
					}
					if err := e.out.Flush(); err != nil {
						return false, err
					}
					cmd.partIndex++
					break readLoop
				}
				if cmd.Plus != nil {
					if err := cmd.Plus(e, cmd, rest); err != nil {
						return false, err
					}
					continue readLoop
				}
				return false, fmt.Errorf("imapengine: unreachable: '+' continuation with no literal or plus-callback")

			case tok.Kind == Char && tok.Ch == '*':
				if err := e.handleUntagged1(cmd); err != nil {
					return false, err
				}
				continue readLoop

			case tok.Kind == Atom && tok.Str == cmd.Tag:
				if err := e.finishTagged(cmd); err != nil {
					return false, err
				}
				return true, nil

			case tok.Kind == NoData:
				return false, mailerr.Newf(mailerr.ServiceProtocolError, "connection closed while awaiting response from %s", e.Host)

			default:
				line, _ := e.stream.ReadLine()
				return false, mailerr.Newf(mailerr.ServiceProtocolError, "unexpected response from IMAP server %s: %s %s", e.Host, tok, line)
			}
		}
	}
	// No more parts: this shouldn't be reached (tagged completion always
	// returns from within the loop), but guard defensively.
	return true, nil
}

// finishTagged reads the completion word (OK/NO/BAD), an optional bracketed
// response code, and drains to EOL.
func (e *Engine) finishTagged(cmd *Command) error {
	tok, err := e.stream.NextToken()
	if err != nil {
		return err
	}
	if tok.Kind != Atom {
		e.drainToEOL()
		return mailerr.Newf(mailerr.ServiceProtocolError, "malformed tagged response from %s", e.Host)
	}
	switch strings.ToUpper(tok.Str) {
	case "OK":
		cmd.Result = ResultOK
	case "NO":
		cmd.Result = ResultNO
	case "BAD":
		cmd.Result = ResultBAD
	default:
		cmd.Result = ResultNone
	}

	rc, err := e.parseRespCode()
	if err != nil {
		return err
	}
	if rc != nil {
		rc2 := rc
		if spec, ok := lookupRespCode(codeNameFor(rc2.Kind)); ok && spec.save {
			cmd.RespCodes = append(cmd.RespCodes, rc2)
		}
	}
	e.drainToEOL()
	cmd.Status = StatusComplete
	return nil
}

func codeNameFor(k RespCodeKind) string {
	for _, s := range respCodeTable {
		if s.kind == k {
			return s.name
		}
	}
	return ""
}

// handleUntagged1 dispatches one untagged ('*') response (spec §4.E
// "Untagged dispatch").
func (e *Engine) handleUntagged1(cmd *Command) error {
	tok, err := e.stream.NextToken()
	if err != nil {
		return err
	}

	if tok.Kind == Atom {
		switch strings.ToUpper(tok.Str) {
		case "BYE":
			e.state = Disconnected
			e.drainToEOL()
			if cmd.Verb != "LOGOUT" {
				return mailerr.Newf(mailerr.ServiceProtocolError, "unexpectedly disconnected from %s", e.Host)
			}
			return nil
		case "CAPABILITY":
			return e.handleCapability()
		case "FLAGS":
			flags, ferr := e.parseFlagList()
			if ferr != nil {
				return ferr
			}
			if cmd.Folder != nil {
				if fh, ok := cmd.Folder.(interface{ SetPermanentFlags(uint32) }); ok {
					fh.SetPermanentFlags(flags)
				}
			}
			return nil
		case "NAMESPACE":
			return e.handleNamespace()
		case "OK", "NO", "BAD":
			rc, rerr := e.parseRespCode()
			if rerr != nil {
				return rerr
			}
			if e.state == Connected {
				e.state = PreAuth
			}
			_ = rc
			e.drainToEOL()
			return nil
		case "PREAUTH":
			e.state = PreAuth
			if _, err := e.parseRespCode(); err != nil {
				return err
			}
			e.state = Authenticated
			e.drainToEOL()
			return nil
		}
		if h, ok := cmd.Untagged[strings.ToUpper(tok.Str)]; ok {
			return h(e, cmd, tok)
		}
		e.drainToEOL()
		return nil
	}

	if tok.Kind == Number {
		seq := tok.Num
		atomTok, aerr := e.stream.NextToken()
		if aerr != nil {
			return aerr
		}
		word := strings.ToUpper(atomTok.Str)
		switch word {
		case "EXISTS", "EXPUNGE", "XGWMOVE", "RECENT":
			e.drainToEOL()
			if h, ok := cmd.Untagged[word]; ok {
				_ = seq
				return h(e, cmd, Token{Kind: Number, Num: seq})
			}
			return nil
		default:
			if h, ok := cmd.Untagged[word]; ok {
				return h(e, cmd, Token{Kind: Number, Num: seq})
			}
			e.drainToEOL()
			return nil
		}
	}

	e.drainToEOL()
	return nil
}

// engineStateChange applies the folder-selection state transitions that
// follow a completed SELECT/EXAMINE/UNSELECT/CLOSE/LOGOUT (spec §4.E).
func (e *Engine) engineStateChange(cmd *Command) {
	switch cmd.Verb {
	case "SELECT", "EXAMINE":
		if cmd.Result == ResultOK {
			e.selected = cmd.Folder
			e.state = Selected
		}
	case "UNSELECT", "CLOSE":
		if cmd.Result == ResultOK {
			e.state = Authenticated
			e.selected = nil
		}
	case "LOGOUT":
		e.state = Disconnected
		e.selected = nil
	}
}

// handleCapability resets and reparses the capability bitmask (spec §4.E).
func (e *Engine) handleCapability() error {
	e.capabilities = CapUTF8Search
	e.authTypes = map[string]bool{}
	for {
		tok, err := e.stream.NextToken()
		if err != nil {
			return err
		}
		if tok.Kind == Char && tok.Ch == '\n' {
			break
		}
		if tok.Kind == NoData {
			break
		}
		if tok.Kind != Atom {
			continue
		}
		name := strings.ToUpper(tok.Str)
		if strings.HasPrefix(name, "AUTH=") {
			e.authTypes[name[len("AUTH="):]] = true
			continue
		}
		if cap, ok := capabilityNames[name]; ok {
			e.capabilities |= cap
		}
	}
	switch {
	case e.capabilities&CapIMAP4rev1 != 0:
		e.level = CapIMAP4rev1
		e.capabilities |= CapStatus
	case e.capabilities&CapIMAP4 != 0:
		e.level = CapIMAP4
	}
	return nil
}

// handleNamespace parses three namespace-list slots, each NIL or a
// parenthesised list of ("path" "sep") pairs (spec §4.E).
func (e *Engine) handleNamespace() error {
	personal, err := e.parseNamespaceSlot()
	if err != nil {
		return err
	}
	other, err := e.parseNamespaceSlot()
	if err != nil {
		return err
	}
	shared, err := e.parseNamespaceSlot()
	if err != nil {
		return err
	}
	e.namespacePersonal = personal
	e.namespaceOther = other
	e.namespaceShared = shared
	e.drainToEOL()
	return nil
}

func (e *Engine) parseNamespaceSlot() ([]NamespaceEntry, error) {
	tok, err := e.stream.NextToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind == Nil {
		return nil, nil
	}
	if tok.Kind != Char || tok.Ch != '(' {
		return nil, mailerr.Newf(mailerr.ServiceProtocolError, "malformed NAMESPACE response from %s", e.Host)
	}
	var entries []NamespaceEntry
	for {
		t, err := e.stream.NextToken()
		if err != nil {
			return nil, err
		}
		if t.Kind == Char && t.Ch == ')' {
			break
		}
		if t.Kind != Char || t.Ch != '(' {
			continue
		}
		pathTok, err := e.stream.NextToken()
		if err != nil {
			return nil, err
		}
		sepTok, err := e.stream.NextToken()
		if err != nil {
			return nil, err
		}
		closeTok, err := e.stream.NextToken()
		if err != nil {
			return nil, err
		}
		_ = closeTok
		var sep byte
		if sepTok.Kind == QString && len(sepTok.Str) == 1 {
			sep = sepTok.Str[0]
		}
		path := strings.TrimSuffix(pathTok.Str, string(sep))
		entries = append(entries, NamespaceEntry{Path: path, Separator: sep})
	}
	return entries, nil
}
