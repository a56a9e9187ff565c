package summary

import (
	"bytes"
	"testing"
)

func sampleInfo(uid string) *IMAPMessageInfo {
	return &IMAPMessageInfo{
		MessageInfo: MessageInfo{
			UID:          uid,
			Sender:       "alice@example.com",
			From:         "Alice <alice@example.com>",
			To:           "bob@example.com",
			Subject:      "hello",
			DateSent:     1700000000,
			DateReceived: 1700000010,
			MessageID:    MessageID{Hi: 0xdeadbeef, Lo: 0x1},
			References:   []MessageID{{Hi: 1, Lo: 2}, {Hi: 3, Lo: 4}},
			Flags:        FlagSeen | FlagFlagged,
			Size:         4096,
			Lines:        80,
			UserFlags:    []string{"$Important", "Work"},
			UserTags:     map[string]string{"label": "inbox"},
		},
		ServerFlags: FlagSeen,
	}
}

func TestMessageInfoRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	in := sampleInfo("42")
	if err := SaveMessageInfo(&buf, in); err != nil {
		t.Fatalf("SaveMessageInfo: %v", err)
	}
	out, err := LoadMessageInfo(&buf)
	if err != nil {
		t.Fatalf("LoadMessageInfo: %v", err)
	}
	if out.UID != in.UID || out.Sender != in.Sender || out.From != in.From ||
		out.To != in.To || out.Subject != in.Subject || out.DateSent != in.DateSent ||
		out.DateReceived != in.DateReceived || out.MessageID != in.MessageID ||
		out.Flags != in.Flags || out.Size != in.Size || out.Lines != in.Lines ||
		out.ServerFlags != in.ServerFlags {
		t.Fatalf("roundtrip mismatch:\n in = %+v\nout = %+v", in, out)
	}
	if len(out.References) != len(in.References) {
		t.Fatalf("References len = %d, want %d", len(out.References), len(in.References))
	}
	for i := range in.References {
		if out.References[i] != in.References[i] {
			t.Fatalf("References[%d] = %+v, want %+v", i, out.References[i], in.References[i])
		}
	}
	if len(out.UserFlags) != 2 || out.UserFlags[0] != "$Important" || out.UserFlags[1] != "Work" {
		t.Fatalf("UserFlags = %v, want [$Important Work]", out.UserFlags)
	}
	if out.UserTags["label"] != "inbox" {
		t.Fatalf("UserTags[label] = %q, want %q", out.UserTags["label"], "inbox")
	}
}

func TestSummarySaveLoadRoundtrip(t *testing.T) {
	s := NewSummary("/tmp/does-not-matter")
	s.Header.UIDValidity = 99
	s.Add(sampleInfo("1"))
	second := sampleInfo("2")
	second.Flags = FlagDeleted
	s.Add(second)

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewSummary(s.Filename)
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Header.UIDValidity != 99 {
		t.Fatalf("UIDValidity = %d, want 99", loaded.Header.UIDValidity)
	}
	if loaded.Header.Count != 2 {
		t.Fatalf("Count = %d, want 2", loaded.Header.Count)
	}
	if loaded.Header.Unread != 1 {
		t.Fatalf("Unread = %d, want 1 (uid 1 carries \\Seen via sampleInfo, uid 2 was overwritten to FlagDeleted only)", loaded.Header.Unread)
	}
	if loaded.Header.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", loaded.Header.Deleted)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(loaded.Messages))
	}
	info, ok := loaded.ByUID("2")
	if !ok || info.Flags != FlagDeleted {
		t.Fatalf("ByUID(2) = (%+v, %v), want FlagDeleted", info, ok)
	}
}

func TestLoadMessageInfoTruncatedErrors(t *testing.T) {
	s := NewSummary("/tmp/x")
	s.Add(sampleInfo("1"))
	var buf bytes.Buffer
	// SaveHeader's recount() sets Count to the real message count (1), but
	// we withhold the message body bytes to simulate a truncated file.
	if err := s.SaveHeader(&buf); err != nil {
		t.Fatalf("SaveHeader: %v", err)
	}
	if err := s.Load(&buf); err == nil {
		t.Fatalf("Load should fail when the promised message body is missing")
	}
}

func TestSummaryAddRemove(t *testing.T) {
	s := NewSummary("/tmp/x")
	s.Add(sampleInfo("a"))
	s.Add(sampleInfo("b"))
	if len(s.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(s.Messages))
	}
	s.Remove("a")
	if len(s.Messages) != 1 {
		t.Fatalf("Messages len after Remove = %d, want 1", len(s.Messages))
	}
	if _, ok := s.ByUID("a"); ok {
		t.Fatalf("ByUID(a) should fail after Remove")
	}
	if _, ok := s.ByUID("b"); !ok {
		t.Fatalf("ByUID(b) should still succeed")
	}
}
