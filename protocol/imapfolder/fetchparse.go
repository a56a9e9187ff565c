package imapfolder

import (
	"strings"
	"time"

	"github.com/eslider/mails/protocol/imapengine"
	"github.com/eslider/mails/protocol/summary"
)

// parseFetchResponse consumes one untagged `FETCH (...)` attribute list and
// records each attribute it recognises into acc for sequence id seq. The
// engine has no fixed FETCH grammar of its own (its token stream is a bare
// lexer); folder code owns interpreting the parenthesised list, the way
// spruce-imap-summary.c's `imap_parse_fetch_response` owns it for the
// C client it was grounded on.
func parseFetchResponse(e *imapengine.Engine, acc *summary.Accumulator, seq uint32) error {
	tok, err := e.NextToken()
	if err != nil {
		return err
	}
	if tok.Kind != imapengine.Char || tok.Ch != '(' {
		e.DrainToEOL()
		return nil
	}

	for {
		nameTok, err := e.NextToken()
		if err != nil {
			return err
		}
		if nameTok.Kind == imapengine.Char && nameTok.Ch == ')' {
			break
		}
		if nameTok.Kind != imapengine.Atom {
			continue
		}
		if err := dispatchFetchAttr(e, acc, seq, strings.ToUpper(nameTok.Str)); err != nil {
			return err
		}
	}
	return nil
}

func dispatchFetchAttr(e *imapengine.Engine, acc *summary.Accumulator, seq uint32, name string) error {
	switch name {
	case "FLAGS":
		flags, err := e.ParseFlagList()
		if err != nil {
			return err
		}
		acc.SetFlags(seq, summary.Flags(flags))
	case "UID":
		tok, err := e.NextToken()
		if err != nil {
			return err
		}
		acc.SetUID(seq, tok.String())
	case "RFC822.SIZE":
		tok, err := e.NextToken()
		if err != nil {
			return err
		}
		acc.SetSize(seq, tok.Num)
	case "INTERNALDATE":
		tok, err := e.NextToken()
		if err != nil {
			return err
		}
		acc.SetInternalDate(seq, parseIMAPDate(tok.Str))
	case "ENVELOPE":
		env, err := parseEnvelope(e)
		if err != nil {
			return err
		}
		acc.SetEnvelope(seq, env.sender, env.from, env.replyTo, env.to, env.cc, env.bcc, env.subject, env.dateSent, env.messageID, env.references)
	default:
		// Unrecognised attribute (BODYSTRUCTURE, BODY[...], X-GM-*, ...): skip
		// its single argument, matching the value shapes the grammar allows.
		return skipFetchValue(e)
	}
	return nil
}

// skipFetchValue discards one FETCH attribute's value: an nstring, a number,
// an atom, or a balanced parenthesised list.
func skipFetchValue(e *imapengine.Engine) error {
	tok, err := e.NextToken()
	if err != nil {
		return err
	}
	if tok.Kind == imapengine.Literal {
		return e.DrainLiteral(tok.Num64)
	}
	if tok.Kind == imapengine.Char && tok.Ch == '(' {
		depth := 1
		for depth > 0 {
			t, err := e.NextToken()
			if err != nil {
				return err
			}
			if t.Kind == imapengine.Char {
				switch t.Ch {
				case '(':
					depth++
				case ')':
					depth--
				}
			} else if t.Kind == imapengine.Literal {
				if err := e.DrainLiteral(t.Num64); err != nil {
					return err
				}
			}
			if t.Kind == imapengine.NoData {
				return nil
			}
		}
	}
	return nil
}

// parseIMAPDate parses an INTERNALDATE string (`dd-Mmm-yyyy HH:MM:SS
// ±zzzz`) into a Unix epoch second; malformed input yields zero.
func parseIMAPDate(s string) uint32 {
	t, err := time.Parse("02-Jan-2006 15:04:05 -0700", s)
	if err != nil {
		return 0
	}
	return uint32(t.Unix())
}

type envelopeFields struct {
	dateSent                                        uint32
	subject, from, sender, replyTo, to, cc, bcc      string
	inReplyTo                                        string
	messageID                                        summary.MessageID
	references                                       []summary.MessageID
}

// parseEnvelope reads the ten-element ENVELOPE structure (RFC 3501 §7.4.2):
// (date subject from sender reply-to to cc bcc in-reply-to message-id).
func parseEnvelope(e *imapengine.Engine) (envelopeFields, error) {
	var env envelopeFields

	tok, err := e.NextToken()
	if err != nil {
		return env, err
	}
	if tok.Kind != imapengine.Char || tok.Ch != '(' {
		return env, nil
	}

	dateStr, err := readNString(e)
	if err != nil {
		return env, err
	}
	if t, perr := time.Parse("Mon, 2 Jan 2006 15:04:05 -0700", dateStr); perr == nil {
		env.dateSent = uint32(t.Unix())
	}

	if env.subject, err = readNString(e); err != nil {
		return env, err
	}
	env.subject = summary.DecodeHeaderWord(env.subject)

	fromAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.from = joinAddresses(fromAddrs)

	senderAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.sender = joinAddresses(senderAddrs)
	if env.sender == "" {
		env.sender = env.from
	}

	replyToAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.replyTo = joinAddresses(replyToAddrs)

	toAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.to = joinAddresses(toAddrs)

	ccAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.cc = joinAddresses(ccAddrs)

	bccAddrs, err := readAddressList(e)
	if err != nil {
		return env, err
	}
	env.bcc = joinAddresses(bccAddrs)

	if env.inReplyTo, err = readNString(e); err != nil {
		return env, err
	}
	env.references = hashMessageIDs(env.inReplyTo)

	msgIDStr, err := readNString(e)
	if err != nil {
		return env, err
	}
	env.messageID = hashMessageID(msgIDStr)

	closeTok, err := e.NextToken()
	if err != nil {
		return env, err
	}
	if closeTok.Kind != imapengine.Char || closeTok.Ch != ')' {
		e.DrainToEOL()
	}
	return env, nil
}

// readNString reads an nstring: NIL, a quoted string, or a literal.
func readNString(e *imapengine.Engine) (string, error) {
	tok, err := e.NextToken()
	if err != nil {
		return "", err
	}
	switch tok.Kind {
	case imapengine.Nil:
		return "", nil
	case imapengine.QString, imapengine.Atom:
		return tok.Str, nil
	case imapengine.Literal:
		return e.ReadLiteral(tok.Num64)
	default:
		return tok.String(), nil
	}
}

type addressField struct {
	name, mailbox, host string
}

// readAddressList reads an address-list: NIL or a parenthesised list of
// `(name adl mailbox host)` address structures.
func readAddressList(e *imapengine.Engine) ([]addressField, error) {
	tok, err := e.NextToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind == imapengine.Nil {
		return nil, nil
	}
	if tok.Kind != imapengine.Char || tok.Ch != '(' {
		e.DrainToEOL()
		return nil, nil
	}

	var out []addressField
	for {
		next, err := e.NextToken()
		if err != nil {
			return out, err
		}
		if next.Kind == imapengine.Char && next.Ch == ')' {
			return out, nil
		}
		if next.Kind != imapengine.Char || next.Ch != '(' {
			continue
		}
		name, err := readNString(e)
		if err != nil {
			return out, err
		}
		if _, err := readNString(e); err != nil { // adl, unused
			return out, err
		}
		mailbox, err := readNString(e)
		if err != nil {
			return out, err
		}
		host, err := readNString(e)
		if err != nil {
			return out, err
		}
		closeTok, err := e.NextToken()
		if err != nil {
			return out, err
		}
		if closeTok.Kind != imapengine.Char || closeTok.Ch != ')' {
			e.DrainToEOL()
		}
		out = append(out, addressField{name: summary.DecodeHeaderWord(name), mailbox: mailbox, host: host})
	}
}

func joinAddresses(addrs []addressField) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		addr := a.mailbox
		if a.host != "" {
			addr += "@" + a.host
		}
		if a.name != "" {
			parts = append(parts, a.name+" <"+addr+">")
		} else {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

// hashMessageID folds a Message-ID header value into the 64-bit form the
// summary stores (spec §3 "Message info": message_id is a hash, not the raw
// string).
func hashMessageID(raw string) summary.MessageID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return summary.MessageID{}
	}
	h := fnv64a(raw)
	return summary.MessageID{Hi: uint32(h >> 32), Lo: uint32(h)}
}

// hashMessageIDs splits a whitespace-separated References/In-Reply-To value
// into individual hashed ids.
func hashMessageIDs(raw string) []summary.MessageID {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	out := make([]summary.MessageID, len(fields))
	for i, f := range fields {
		out[i] = hashMessageID(f)
	}
	return out
}

func fnv64a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	var h uint64 = offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}
