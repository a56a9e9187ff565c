package imapengine

import (
	"bytes"
	"fmt"
	"io"
)

// LiteralPayload is the literal data a Part may carry: an owned string, a
// stream, or any byte source that the engine streams verbatim after a
// continuation (spec §3 Command (IMAP)).
type LiteralPayload interface {
	// Len returns the literal's byte length, pre-measured (spec §4.D: "length
	// is pre-measured through a CRLF-canonicalising null sink" for %L).
	Len() (int64, error)
	// WriteTo streams the payload to w, canonicalising CRLF when canon is true.
	WriteTo(w io.Writer, canon bool) error
}

// StringLiteral is a LiteralPayload backed by an in-memory string; %S falls
// back to this when a value isn't atom/qstring-safe.
type StringLiteral struct {
	Data string
	// Canon selects CRLF canonicalisation (false for %S raw-string literals,
	// true for %L object/stream/wrapper payloads per spec §4.E step 3).
	Canon bool
}

func (l StringLiteral) Len() (int64, error) {
	if !l.Canon {
		return int64(len(l.Data)), nil
	}
	var cw countingCRLFWriter
	cw.canon(strWriter(l.Data))
	return cw.n, nil
}

func (l StringLiteral) WriteTo(w io.Writer, canon bool) error {
	if !canon {
		_, err := io.WriteString(w, l.Data)
		return err
	}
	return canonicalizeCRLF(w, []byte(l.Data))
}

// Part is one segment of an IMAP command's wire form: a literal buffer plus
// an optional literal payload appended after a server continuation.
type Part struct {
	Buf     []byte
	Literal LiteralPayload
}

// Foldable is implemented by callers' folder types so %F can render the
// server-visible (UTF-7 encoded) mailbox name without builder depending on
// imapfolder.
type Foldable interface {
	ServerName() string
}

// Directive is a typed command-builder token (spec §9 design note), avoiding
// printf-style varargs.
type Directive interface{ isDirective() }

type DirFolder struct{ Folder Foldable }
type DirLiteral struct{ Payload LiteralPayload }
type DirMaybeQuoted struct{ Value string }
type DirAtom struct{ Value string }
type DirChar struct{ Value byte }
type DirI32 struct{ Value int32 }
type DirU32 struct{ Value uint32 }
type DirPercent struct{}

func (DirFolder) isDirective()      {}
func (DirLiteral) isDirective()     {}
func (DirMaybeQuoted) isDirective() {}
func (DirAtom) isDirective()        {}
func (DirChar) isDirective()        {}
func (DirI32) isDirective()         {}
func (DirU32) isDirective()         {}
func (DirPercent) isDirective()     {}

// Build assembles a command's part list. hasLiteralPlus selects whether a
// literal %S resolution is inlined as `{n+}\r\n<data>` (no split) rather than
// closing the current part.
func Build(hasLiteralPlus bool, directives ...Directive) ([]Part, error) {
	var parts []Part
	cur := &bytes.Buffer{}

	closePart := func(lit LiteralPayload) {
		parts = append(parts, Part{Buf: append([]byte{}, cur.Bytes()...), Literal: lit})
		cur.Reset()
	}

	for _, d := range directives {
		switch v := d.(type) {
		case DirPercent:
			cur.WriteByte('%')
		case DirChar:
			cur.WriteByte(v.Value)
		case DirI32:
			fmt.Fprintf(cur, "%d", v.Value)
		case DirU32:
			fmt.Fprintf(cur, "%d", v.Value)
		case DirAtom:
			cur.WriteString(v.Value)
		case DirFolder:
			name := v.Folder.ServerName()
			writeS(cur, name, hasLiteralPlus, closePart)
		case DirMaybeQuoted:
			writeS(cur, v.Value, hasLiteralPlus, closePart)
		case DirLiteral:
			n, err := v.Payload.Len()
			if err != nil {
				return nil, fmt.Errorf("imapengine: measuring literal length: %w", err)
			}
			fmt.Fprintf(cur, "{%d}\r\n", n)
			closePart(v.Payload)
		default:
			cur.WriteByte('%')
			cur.WriteByte('?')
		}
	}
	parts = append(parts, Part{Buf: append([]byte{}, cur.Bytes()...)})
	return parts, nil
}

// writeS chooses %S's encoding: bare atom, quoted string, or literal.
func writeS(cur *bytes.Buffer, s string, hasLiteralPlus bool, closePart func(LiteralPayload)) {
	atomSafe := s != ""
	qstringSafe := true
	for i := 0; i < len(s); i++ {
		b := s[i]
		if !isAtomChar(b) {
			atomSafe = false
		}
		if !isQStringSafe(b) {
			qstringSafe = false
		}
	}
	if atomSafe {
		cur.WriteString(s)
		return
	}
	if qstringSafe {
		cur.WriteByte('"')
		for i := 0; i < len(s); i++ {
			b := s[i]
			if b == '"' || b == '\\' {
				cur.WriteByte('\\')
			}
			cur.WriteByte(b)
		}
		cur.WriteByte('"')
		return
	}
	lit := StringLiteral{Data: s, Canon: false}
	n := int64(len(s))
	if hasLiteralPlus {
		fmt.Fprintf(cur, "{%d+}\r\n", n)
		cur.WriteString(s)
		return
	}
	fmt.Fprintf(cur, "{%d}\r\n", n)
	closePart(lit)
}

// canonicalizeCRLF writes data to w with bare '\n' normalised to "\r\n" and
// existing "\r\n" left intact (the CRLF-canonicalising filter referenced by
// spec §9's open question on imap_literal_write_to_stream: we define the
// literal writer as "wrap the output in a CRLF-canonicalising filter, write,
// then drop the filter").
func canonicalizeCRLF(w io.Writer, data []byte) error {
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' && (i == 0 || data[i-1] != '\r') {
			if _, err := w.Write(data[start:i]); err != nil {
				return err
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return err
			}
			start = i + 1
		}
	}
	_, err := w.Write(data[start:])
	return err
}

type strWriter string

func (s strWriter) Len() int { return len(s) }

type countingCRLFWriter struct{ n int64 }

func (c *countingCRLFWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func (c *countingCRLFWriter) canon(s strWriter) {
	canonicalizeCRLF(c, []byte(s))
}
