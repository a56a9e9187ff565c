package imapfolder

import (
	"net"
	"testing"

	"github.com/eslider/mails/protocol/imapengine"
	"github.com/eslider/mails/protocol/netio"
	"github.com/eslider/mails/protocol/summary"
)

// engineWithScript wires an *imapengine.Engine to a net.Pipe whose server
// side has already written the full canned response text; the engine's
// token stream reads it back through the usual netio.Conn path.
func engineWithScript(t *testing.T, s string) *imapengine.Engine {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		server.Write([]byte(s))
	}()
	t.Cleanup(func() { client.Close(); server.Close() })
	nc := netio.New(nil, client, nil)
	return imapengine.New("test-host", nc)
}

func TestParseFetchResponseSimpleAttrs(t *testing.T) {
	e := engineWithScript(t, `(FLAGS (\Seen \Deleted) UID 42 RFC822.SIZE 1234 INTERNALDATE "01-Jan-2020 10:00:00 +0000")`+"\r\n")
	acc := summary.NewAccumulator(1)

	if err := parseFetchResponse(e, acc, 1); err != nil {
		t.Fatalf("parseFetchResponse: %v", err)
	}

	info := acc.Slots[0].Info
	want := uint32(summary.FlagSeen | summary.FlagDeleted)
	if info.Flags != summary.Flags(want) {
		t.Fatalf("Flags = %b, want %b", info.Flags, want)
	}
	if info.UID != "42" {
		t.Fatalf("UID = %q, want 42", info.UID)
	}
	if info.Size != 1234 {
		t.Fatalf("Size = %d, want 1234", info.Size)
	}
	if info.DateReceived != 1577872800 {
		t.Fatalf("DateReceived = %d, want 1577872800", info.DateReceived)
	}
	want2 := summary.HaveFlags | summary.HaveUID | summary.HaveSize | summary.HaveInternalDate
	if acc.Slots[0].Have != want2 {
		t.Fatalf("Have = %b, want %b", acc.Slots[0].Have, want2)
	}
}

func TestParseFetchResponseSkipsUnknownAttrThenContinues(t *testing.T) {
	e := engineWithScript(t, `(BODYSTRUCTURE ("TEXT" "PLAIN" NIL NIL NIL "7BIT" 10 1) UID 7)`+"\r\n")
	acc := summary.NewAccumulator(1)

	if err := parseFetchResponse(e, acc, 1); err != nil {
		t.Fatalf("parseFetchResponse: %v", err)
	}
	if acc.Slots[0].Info.UID != "7" {
		t.Fatalf("UID = %q, want 7 (parsing should resume after the skipped BODYSTRUCTURE list)", acc.Slots[0].Info.UID)
	}
}

func TestParseFetchResponseNoOpeningParenDrainsLine(t *testing.T) {
	e := engineWithScript(t, "garbage rest of line\r\nnext\r\n")
	acc := summary.NewAccumulator(1)

	if err := parseFetchResponse(e, acc, 1); err != nil {
		t.Fatalf("parseFetchResponse: %v", err)
	}
	if len(acc.Slots) != 0 {
		t.Fatalf("Slots = %+v, want untouched when the response has no leading '('", acc.Slots)
	}
	tok, err := e.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != imapengine.Atom || tok.Str != "next" {
		t.Fatalf("token after drain = %+v, want the next line's atom", tok)
	}
}

func TestParseEnvelopeFullStructure(t *testing.T) {
	raw := `("Wed, 1 Jan 2020 10:00:00 +0000" "Hello" ` +
		`(("Alice" NIL "alice" "example.com")) ` +
		`NIL NIL ` +
		`(("Bob" NIL "bob" "example.org")) ` +
		`NIL NIL ` +
		`"<r1@x> <r2@y>" "<abc@example.com>")` + "\r\n"
	e := engineWithScript(t, raw)

	env, err := parseEnvelope(e)
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.dateSent != 1577872800 {
		t.Fatalf("dateSent = %d, want 1577872800", env.dateSent)
	}
	if env.subject != "Hello" {
		t.Fatalf("subject = %q, want Hello", env.subject)
	}
	if env.from != "Alice <alice@example.com>" {
		t.Fatalf("from = %q, want %q", env.from, "Alice <alice@example.com>")
	}
	if env.sender != env.from {
		t.Fatalf("sender = %q, want it to default to from %q", env.sender, env.from)
	}
	if env.replyTo != "" {
		t.Fatalf("replyTo = %q, want empty (NIL)", env.replyTo)
	}
	if env.to != "Bob <bob@example.org>" {
		t.Fatalf("to = %q, want %q", env.to, "Bob <bob@example.org>")
	}
	if env.cc != "" || env.bcc != "" {
		t.Fatalf("cc/bcc = %q/%q, want both empty", env.cc, env.bcc)
	}
	if len(env.references) != 2 {
		t.Fatalf("references len = %d, want 2", len(env.references))
	}
	if env.references[0].Hi != 256653617 || env.references[0].Lo != 3464699992 {
		t.Fatalf("references[0] = %+v, want hash of <r1@x>", env.references[0])
	}
	if env.references[1].Hi != 3306939179 || env.references[1].Lo != 3979439938 {
		t.Fatalf("references[1] = %+v, want hash of <r2@y>", env.references[1])
	}
	if env.messageID.Hi != 2343569844 || env.messageID.Lo != 1537759458 {
		t.Fatalf("messageID = %+v, want hash of <abc@example.com>", env.messageID)
	}
}

func TestParseEnvelopeNilFieldsYieldEmptyStrings(t *testing.T) {
	raw := `(NIL NIL NIL NIL NIL NIL NIL NIL NIL NIL)` + "\r\n"
	e := engineWithScript(t, raw)

	env, err := parseEnvelope(e)
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.dateSent != 0 || env.subject != "" || env.from != "" || env.sender != "" {
		t.Fatalf("env = %+v, want all-zero for an all-NIL envelope", env)
	}
	if len(env.references) != 0 {
		t.Fatalf("references = %v, want empty", env.references)
	}
	if env.messageID != (summary.MessageID{}) {
		t.Fatalf("messageID = %+v, want zero value for NIL message-id", env.messageID)
	}
}

func TestJoinAddressesWithoutDisplayName(t *testing.T) {
	addrs := []addressField{{mailbox: "alice", host: "example.com"}}
	if got := joinAddresses(addrs); got != "alice@example.com" {
		t.Fatalf("joinAddresses = %q, want %q", got, "alice@example.com")
	}
}

func TestJoinAddressesMultipleCommaSeparated(t *testing.T) {
	addrs := []addressField{
		{name: "Alice", mailbox: "alice", host: "example.com"},
		{mailbox: "bob", host: "example.org"},
	}
	want := "Alice <alice@example.com>, bob@example.org"
	if got := joinAddresses(addrs); got != want {
		t.Fatalf("joinAddresses = %q, want %q", got, want)
	}
}

func TestParseIMAPDateMalformedReturnsZero(t *testing.T) {
	if got := parseIMAPDate("not a date"); got != 0 {
		t.Fatalf("parseIMAPDate = %d, want 0 for malformed input", got)
	}
}

func TestParseIMAPDateValid(t *testing.T) {
	if got := parseIMAPDate("01-Jan-2020 10:00:00 +0000"); got != 1577872800 {
		t.Fatalf("parseIMAPDate = %d, want 1577872800", got)
	}
}

func TestHashMessageIDEmptyYieldsZeroValue(t *testing.T) {
	if got := hashMessageID("   "); got != (summary.MessageID{}) {
		t.Fatalf("hashMessageID(whitespace) = %+v, want zero value", got)
	}
}

func TestHashMessageIDsSplitsOnWhitespace(t *testing.T) {
	ids := hashMessageIDs("<r1@x>  <r2@y>")
	if len(ids) != 2 {
		t.Fatalf("hashMessageIDs len = %d, want 2", len(ids))
	}
	if ids[0].Hi != 256653617 || ids[0].Lo != 3464699992 {
		t.Fatalf("ids[0] = %+v, want hash of <r1@x>", ids[0])
	}
}

func TestHashMessageIDsEmptyYieldsNil(t *testing.T) {
	if got := hashMessageIDs("   "); got != nil {
		t.Fatalf("hashMessageIDs(whitespace) = %v, want nil", got)
	}
}

func TestSkipFetchValueBalancesNestedParens(t *testing.T) {
	e := engineWithScript(t, `(("a" ("b" "c")) "d") UID 9)`+"\r\n")
	if err := skipFetchValue(e); err != nil {
		t.Fatalf("skipFetchValue: %v", err)
	}
	tok, err := e.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != imapengine.Atom || tok.Str != "UID" {
		t.Fatalf("token after skipFetchValue = %+v, want the UID atom that follows the balanced list", tok)
	}
}

func TestReadNStringReadsLiteralPayload(t *testing.T) {
	e := engineWithScript(t, "{5}\r\nhello UID 9\r\n")
	got, err := readNString(e)
	if err != nil {
		t.Fatalf("readNString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("readNString = %q, want %q", got, "hello")
	}
	tok, err := e.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != imapengine.Atom || tok.Str != "UID" {
		t.Fatalf("token after literal = %+v, want the UID atom that follows it", tok)
	}
}

func TestSkipFetchValueDrainsBareLiteral(t *testing.T) {
	e := engineWithScript(t, "{5}\r\nhello UID 9\r\n")
	if err := skipFetchValue(e); err != nil {
		t.Fatalf("skipFetchValue: %v", err)
	}
	tok, err := e.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != imapengine.Atom || tok.Str != "UID" {
		t.Fatalf("token after skipFetchValue = %+v, want the UID atom that follows the literal", tok)
	}
}

func TestSkipFetchValueDrainsLiteralInsideNestedList(t *testing.T) {
	e := engineWithScript(t, "(\"a\" {5}\r\nhello) UID 9\r\n")
	if err := skipFetchValue(e); err != nil {
		t.Fatalf("skipFetchValue: %v", err)
	}
	tok, err := e.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Kind != imapengine.Atom || tok.Str != "UID" {
		t.Fatalf("token after skipFetchValue = %+v, want the UID atom that follows the list", tok)
	}
}

func TestParseEnvelopeLiteralSubject(t *testing.T) {
	raw := "(NIL {5}\r\nHello NIL NIL NIL NIL NIL NIL NIL NIL)\r\n"
	e := engineWithScript(t, raw)

	env, err := parseEnvelope(e)
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.subject != "Hello" {
		t.Fatalf("subject = %q, want %q (read from a literal)", env.subject, "Hello")
	}
}
