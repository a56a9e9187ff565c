package imapengine

import (
	"strings"
	"testing"

	"github.com/eslider/mails/protocol/summary"
)

func engineWithStream(s string) *Engine {
	return &Engine{stream: NewStream(WrapReader(strings.NewReader(s))), authTypes: map[string]bool{}}
}

func TestParseRespCodeNoBracketUngets(t *testing.T) {
	e := engineWithStream("junk\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc != nil {
		t.Fatalf("parseRespCode = %+v, want nil when input has no leading '['", rc)
	}
	tok, err := e.stream.NextToken()
	if err != nil {
		t.Fatalf("NextToken after unget: %v", err)
	}
	if tok.Kind != Atom || tok.Str != "junk" {
		t.Fatalf("NextToken after unget = %+v, want the un-consumed atom back", tok)
	}
}

func TestParseRespCodeReadWrite(t *testing.T) {
	e := engineWithStream("[READ-WRITE]\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCReadWrite {
		t.Fatalf("parseRespCode = %+v, want RCReadWrite", rc)
	}
}

func TestParseRespCodeUIDValidity(t *testing.T) {
	e := engineWithStream("[UIDVALIDITY 12345]\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCUIDValidity || rc.U32 != 12345 {
		t.Fatalf("parseRespCode = %+v, want RCUIDValidity U32=12345", rc)
	}
}

func TestParseRespCodeAppendUID(t *testing.T) {
	e := engineWithStream("[APPENDUID 38505 3955] Done\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCAppendUID || rc.UIDValidity != 38505 || rc.UID != 3955 {
		t.Fatalf("parseRespCode = %+v, want RCAppendUID 38505/3955", rc)
	}
}

func TestParseRespCodeCopyUIDSetsStayAsAtoms(t *testing.T) {
	e := engineWithStream("[COPYUID 38505 304,319:320 3956:3958] Done\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCCopyUID {
		t.Fatalf("parseRespCode = %+v, want RCCopyUID", rc)
	}
	if rc.UIDValidity != 38505 {
		t.Fatalf("UIDValidity = %d, want 38505", rc.UIDValidity)
	}
	if rc.SrcSet != "304,319:320" {
		t.Fatalf("SrcSet = %q, want %q (digit run glued to ',' and ':' lexes as one atom)", rc.SrcSet, "304,319:320")
	}
	if rc.DestSet != "3956:3958" {
		t.Fatalf("DestSet = %q, want %q", rc.DestSet, "3956:3958")
	}
}

func TestParseRespCodeBadCharsetClearsUTF8Search(t *testing.T) {
	e := engineWithStream("[BADCHARSET] bad\r\n")
	e.capabilities = CapUTF8Search
	if _, err := e.parseRespCode(); err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if e.capabilities&CapUTF8Search != 0 {
		t.Fatalf("CapUTF8Search should be cleared after BADCHARSET")
	}
}

func TestParseRespCodeAlertCapturesLineAndFiresHook(t *testing.T) {
	e := engineWithStream("[ALERT] Server going down for maintenance\r\n")
	var captured string
	e.onAlert = func(msg string) { captured = msg }
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCAlert {
		t.Fatalf("parseRespCode = %+v, want RCAlert", rc)
	}
	// ALERT returns before consuming the ']' itself, so the text it captures
	// (and forwards to onAlert) still has it as the first rune.
	want := "] Server going down for maintenance"
	if rc.Str != want {
		t.Fatalf("rc.Str = %q, want %q", rc.Str, want)
	}
	if captured != want {
		t.Fatalf("onAlert captured %q, want %q", captured, want)
	}
}

func TestParseRespCodeUnknownSkipsToClosingBracket(t *testing.T) {
	e := engineWithStream("[FOOBAR xyz] trailing text\r\n")
	rc, err := e.parseRespCode()
	if err != nil {
		t.Fatalf("parseRespCode: %v", err)
	}
	if rc == nil || rc.Kind != RCUnknown {
		t.Fatalf("parseRespCode = %+v, want RCUnknown", rc)
	}
	line, err := e.stream.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != " trailing text" {
		t.Fatalf("remaining line = %q, want %q", line, " trailing text")
	}
}

func TestParseFlagListBuildsBitmask(t *testing.T) {
	e := engineWithStream(`(\Seen \Answered \Flagged)` + "\r\n")
	mask, err := e.parseFlagList()
	if err != nil {
		t.Fatalf("parseFlagList: %v", err)
	}
	want := uint32(summary.FlagSeen | summary.FlagAnswered | summary.FlagFlagged)
	if mask != want {
		t.Fatalf("parseFlagList = %b, want %b", mask, want)
	}
}

func TestDrainToEOLConsumesRestOfLine(t *testing.T) {
	e := engineWithStream("garbage tokens here\nnext line\n")
	e.drainToEOL()
	line, err := e.stream.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "next line" {
		t.Fatalf("line after drainToEOL = %q, want %q", line, "next line")
	}
}
