package imapengine

import (
	"fmt"

	"github.com/eslider/mails/protocol/summary"
)

// RespCodeKind enumerates the bracketed IMAP response codes (spec §3).
type RespCodeKind int

const (
	RCUnknown RespCodeKind = iota
	RCAlert
	RCBadCharset
	RCCapability
	RCParse
	RCPermFlags
	RCReadOnly
	RCReadWrite
	RCTryCreate
	RCUIDNext
	RCUIDValidity
	RCUnseen
	RCNewName
	RCAppendUID
	RCCopyUID
	RCUIDNotSticky
	RCHighestModSeq
	RCNoModSeq
)

// RespCode is a decoded response code, attached to a command's RespCodes
// list when its kind is marked "save" in the dispatch table.
type RespCode struct {
	Kind RespCodeKind

	Str        string // PARSE text, ALERT text
	U32        uint32 // PERM_FLAGS bitmask, UIDNEXT, UIDVALIDITY, UNSEEN, HIGHESTMODSEQ(lo)
	U64        uint64 // HIGHESTMODSEQ
	OldName    string // NEWNAME
	NewName    string
	UIDValidity uint32 // APPENDUID / COPYUID
	UID         uint32 // APPENDUID
	SrcSet      string // COPYUID
	DestSet     string // COPYUID
}

// respCodeSpec describes one known response code: its atom name and whether
// it should be saved onto the active command.
type respCodeSpec struct {
	name string
	kind RespCodeKind
	save bool
}

var respCodeTable = []respCodeSpec{
	{"ALERT", RCAlert, true},
	{"BADCHARSET", RCBadCharset, true},
	{"CAPABILITY", RCCapability, true},
	{"PARSE", RCParse, true},
	{"PERMANENTFLAGS", RCPermFlags, true},
	{"READ-ONLY", RCReadOnly, true},
	{"READ-WRITE", RCReadWrite, true},
	{"TRYCREATE", RCTryCreate, true},
	{"UIDNEXT", RCUIDNext, true},
	{"UIDVALIDITY", RCUIDValidity, true},
	{"UNSEEN", RCUnseen, true},
	{"NEWNAME", RCNewName, true},
	{"APPENDUID", RCAppendUID, true},
	{"COPYUID", RCCopyUID, true},
	{"UIDNOTSTICKY", RCUIDNotSticky, true},
	{"HIGHESTMODSEQ", RCHighestModSeq, true},
	{"NOMODSEQ", RCNoModSeq, true},
}

func lookupRespCode(name string) (respCodeSpec, bool) {
	for _, s := range respCodeTable {
		if s.name == name {
			return s, true
		}
	}
	return respCodeSpec{}, false
}

// parseRespCode consumes `[ATOM [argument...]]` from s and returns the
// decoded code (if any) plus the trailing alert/parse text when applicable.
// It mutates e's utf8Search capability bit on BADCHARSET and forwards ALERT
// text to the alert hook.
func (e *Engine) parseRespCode() (*RespCode, error) {
	tok, err := e.stream.NextToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind != Char || tok.Ch != '[' {
		if err := e.stream.UngetToken(tok); err != nil {
			return nil, err
		}
		return nil, nil
	}

	atomTok, err := e.stream.NextToken()
	if err != nil {
		return nil, err
	}
	if atomTok.Kind != Atom {
		e.drainToEOL()
		return nil, nil
	}

	spec, known := lookupRespCode(atomTok.Str)
	rc := &RespCode{Kind: RCUnknown}
	if known {
		rc.Kind = spec.kind
	}

	switch rc.Kind {
	case RCPermFlags:
		flags, err := e.parseFlagList()
		if err == nil {
			rc.U32 = flags
		}
	case RCUIDNext, RCUIDValidity, RCUnseen:
		n, _ := e.stream.NextToken()
		rc.U32 = n.Num
	case RCHighestModSeq:
		n, _ := e.stream.NextToken()
		if n.Kind == Number64 {
			rc.U64 = n.Num64
		} else {
			rc.U64 = uint64(n.Num)
		}
	case RCNewName:
		old, _ := e.stream.NextToken()
		nw, _ := e.stream.NextToken()
		rc.OldName = old.Str
		rc.NewName = nw.Str
	case RCAppendUID:
		uv, _ := e.stream.NextToken()
		uid, _ := e.stream.NextToken()
		rc.UIDValidity = uv.Num
		rc.UID = uid.Num
	case RCCopyUID:
		uv, _ := e.stream.NextToken()
		src, _ := e.stream.NextToken()
		dst, _ := e.stream.NextToken()
		rc.UIDValidity = uv.Num
		rc.SrcSet = src.Str
		rc.DestSet = dst.Str
	case RCBadCharset:
		e.capabilities &^= CapUTF8Search
	case RCAlert:
		line, _ := e.stream.ReadLine()
		rc.Str = line
		if e.onAlert != nil {
			e.onAlert(line)
		}
		return rc, nil // ALERT captures the rest of the line itself
	case RCParse:
		line, _ := e.stream.ReadLine()
		rc.Str = line
		return rc, nil
	}

	// Consume the closing ']'.
	for {
		t, err := e.stream.NextToken()
		if err != nil {
			return rc, err
		}
		if t.Kind == Char && t.Ch == ']' {
			break
		}
		if t.Kind == NoData {
			break
		}
	}
	return rc, nil
}

// parseFlagList parses a parenthesised flag list into a bitmask.
func (e *Engine) parseFlagList() (uint32, error) {
	t, err := e.stream.NextToken()
	if err != nil {
		return 0, err
	}
	if t.Kind != Char || t.Ch != '(' {
		return 0, fmt.Errorf("imapengine: expected '(' in flag list, got %v", t)
	}
	var mask uint32
	for {
		t, err := e.stream.NextToken()
		if err != nil {
			return mask, err
		}
		if t.Kind == Char && t.Ch == ')' {
			return mask, nil
		}
		if t.Kind == Flag {
			mask |= uint32(summary.FlagFromName(t.Str))
		}
	}
}

// drainToEOL consumes the rest of the current line (used after an
// unrecognised/unsavable construct).
func (e *Engine) drainToEOL() {
	for {
		t, err := e.stream.NextToken()
		if err != nil || t.Kind == NoData {
			return
		}
		if t.Kind == Char && t.Ch == '\n' {
			return
		}
	}
}
