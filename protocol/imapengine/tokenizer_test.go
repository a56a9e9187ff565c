package imapengine

import (
	"strings"
	"testing"
)

func TestNextTokenKinds(t *testing.T) {
	src := "a001 FETCH 12 (FLAGS \\Seen \\* {5}\r\nhello \"quo\\\"ted\" NIL)\n"
	s := NewStream(WrapReader(strings.NewReader(src)))

	want := []Token{
		{Kind: Atom, Str: "a001"},
		{Kind: Atom, Str: "FETCH"},
		{Kind: Number, Num: 12},
		{Kind: Char, Ch: '('},
		{Kind: Atom, Str: "FLAGS"},
		{Kind: Flag, Str: `\Seen`},
		{Kind: Flag, Str: `\*`},
	}
	for i, w := range want {
		tok, err := s.NextToken()
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if tok.Kind != w.Kind || tok.Str != w.Str || tok.Num != w.Num {
			t.Fatalf("token %d = %+v, want %+v", i, tok, w)
		}
	}

	// literal opener
	tok, err := s.NextToken()
	if err != nil {
		t.Fatalf("literal token: %v", err)
	}
	if tok.Kind != Literal || tok.Num64 != 5 {
		t.Fatalf("literal token = %+v, want Literal{5}", tok)
	}

	buf := make([]byte, 5)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("literal read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("literal bytes = %q, want %q", buf[:n], "hello")
	}
	// exactly one zero-length Read signals end of literal.
	n, err = s.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("literal eol read = (%d, %v), want (0, nil)", n, err)
	}

	tok, err = s.NextToken()
	if err != nil {
		t.Fatalf("quoted string token: %v", err)
	}
	if tok.Kind != QString || tok.Str != `quo"ted` {
		t.Fatalf("quoted string = %+v, want %q", tok, `quo"ted`)
	}

	tok, err = s.NextToken()
	if err != nil {
		t.Fatalf("NIL token: %v", err)
	}
	if tok.Kind != Nil {
		t.Fatalf("token = %+v, want Nil", tok)
	}

	tok, err = s.NextToken()
	if err != nil {
		t.Fatalf("close paren token: %v", err)
	}
	if tok.Kind != Char || tok.Ch != ')' {
		t.Fatalf("token = %+v, want Char ')'", tok)
	}
}

func TestNextTokenNumber64Overflow(t *testing.T) {
	s := NewStream(WrapReader(strings.NewReader("9999999999 \n")))
	tok, err := s.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != Number64 || tok.Num64 != 9999999999 {
		t.Fatalf("token = %+v, want Number64{9999999999}", tok)
	}
}

func TestNextTokenUIDSetAtom(t *testing.T) {
	// A digit run followed by ':' or ',' is a set atom, not a Number.
	s := NewStream(WrapReader(strings.NewReader("12:34,56\n")))
	tok, err := s.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != Atom || tok.Str != "12:34,56" {
		t.Fatalf("token = %+v, want Atom{12:34,56}", tok)
	}
}

func TestUngetTokenRoundtrip(t *testing.T) {
	s := NewStream(WrapReader(strings.NewReader("foo bar\n")))
	first, err := s.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if err := s.UngetToken(first); err != nil {
		t.Fatalf("UngetToken: %v", err)
	}
	again, err := s.NextToken()
	if err != nil {
		t.Fatalf("NextToken after unget: %v", err)
	}
	if again.Str != first.Str {
		t.Fatalf("unget returned %+v, want %+v", again, first)
	}
	if err := s.UngetToken(again); err != nil {
		t.Fatalf("UngetToken: %v", err)
	}
	if err := s.UngetToken(again); err == nil {
		t.Fatalf("second UngetToken without intervening NextToken should fail")
	}
}

func TestReadLine(t *testing.T) {
	s := NewStream(WrapReader(strings.NewReader("+OK ready\r\nsecond\n")))
	line, err := s.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "+OK ready" {
		t.Fatalf("ReadLine = %q, want %q", line, "+OK ready")
	}
	line, err = s.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "second" {
		t.Fatalf("ReadLine = %q, want %q", line, "second")
	}
}

func TestBuildDirectives(t *testing.T) {
	parts, err := Build(false, DirAtom{"a1"}, DirChar{' '}, DirAtom{"LOGIN"}, DirChar{' '}, DirMaybeQuoted{"plain"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1 for an all-atom-safe command", len(parts))
	}
	if string(parts[0].Buf) != "a1 LOGIN plain" {
		t.Fatalf("parts[0].Buf = %q, want %q", parts[0].Buf, "a1 LOGIN plain")
	}
}

func TestBuildMaybeQuotedNeedsQuoting(t *testing.T) {
	parts, err := Build(false, DirMaybeQuoted{"has space"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1", len(parts))
	}
	if string(parts[0].Buf) != `"has space"` {
		t.Fatalf("parts[0].Buf = %q, want %q", parts[0].Buf, `"has space"`)
	}
}

func TestBuildMaybeQuotedFallsBackToLiteral(t *testing.T) {
	parts, err := Build(false, DirAtom{"a1 APPEND"}, DirChar{' '}, DirMaybeQuoted{"quote\ninside"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2 (split at literal boundary)", len(parts))
	}
	if parts[0].Literal == nil {
		t.Fatalf("parts[0].Literal = nil, want the string literal payload")
	}
	n, err := parts[0].Literal.Len()
	if err != nil {
		t.Fatalf("Literal.Len: %v", err)
	}
	if n != int64(len("quote\ninside")) {
		t.Fatalf("Literal.Len = %d, want %d", n, len("quote\ninside"))
	}
}

func TestBuildLiteralPlusInlines(t *testing.T) {
	parts, err := Build(true, DirMaybeQuoted{"quote\ninside"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1 (LITERAL+ inlines, no split)", len(parts))
	}
	want := "{12+}\r\nquote\ninside"
	if string(parts[0].Buf) != want {
		t.Fatalf("parts[0].Buf = %q, want %q", parts[0].Buf, want)
	}
}
