package summary

import (
	"reflect"
	"testing"
)

func infosWithUIDs(uids ...string) []*IMAPMessageInfo {
	out := make([]*IMAPMessageInfo, len(uids))
	for i, u := range uids {
		out[i] = &IMAPMessageInfo{MessageInfo: MessageInfo{UID: u}}
	}
	return out
}

func TestBuildUIDSetCompactsNumericallyContiguousRuns(t *testing.T) {
	// Spec §8 scenario 4: [1,2,3,5,6,7,10] at a 10-byte budget. Contiguity is
	// keyed off each UID's own numeric value, not array position, so the gap
	// between 7 and 10 starts a new range even though both are adjacent
	// elements in infos. "1:3,5:7" is 7 bytes; folding in ",10" would reach
	// the 10-byte budget, so it's left for the next batch.
	infos := infosWithUIDs("1", "2", "3", "5", "6", "7", "10")
	set, consumed := BuildUIDSet(infos, 0, 10)
	if consumed != 6 {
		t.Fatalf("consumed = %d, want 6", consumed)
	}
	if set != "1:3,5:7" {
		t.Fatalf("BuildUIDSet = %q, want %q", set, "1:3,5:7")
	}

	set2, consumed2 := BuildUIDSet(infos, consumed, 10)
	if consumed2 != 1 {
		t.Fatalf("second batch consumed = %d, want 1", consumed2)
	}
	if set2 != "10" {
		t.Fatalf("second batch = %q, want %q", set2, "10")
	}
}

func TestBuildUIDSetNonNumericUIDNeverExtendsARange(t *testing.T) {
	// A non-decimal UID (e.g. a synthetic POP3 "seq:size" id) can't be part
	// of a numeric contiguous run, before or after it.
	infos := infosWithUIDs("1", "2", "abc", "3")
	set, consumed := BuildUIDSet(infos, 0, 1<<20)
	if consumed != len(infos) {
		t.Fatalf("consumed = %d, want %d", consumed, len(infos))
	}
	if set != "1:2,abc,3" {
		t.Fatalf("BuildUIDSet = %q, want %q", set, "1:2,abc,3")
	}
}

func TestBuildUIDSetSingleMessageHasNoColon(t *testing.T) {
	infos := infosWithUIDs("42")
	set, consumed := BuildUIDSet(infos, 0, 1<<20)
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
	if set != "42" {
		t.Fatalf("BuildUIDSet = %q, want %q", set, "42")
	}
}

func TestBuildUIDSetRespectsMaxLen(t *testing.T) {
	// "1" -> "1:2" (len 3) fits under budget 5; 33333 is not numerically
	// next to 2, so it would start a new range ",33333" and grow the set past
	// budget, so BuildUIDSet stops and leaves it for the next batch.
	infos := infosWithUIDs("1", "2", "33333")
	set, consumed := BuildUIDSet(infos, 0, 5)
	if consumed != 2 {
		t.Fatalf("consumed = %d, want 2", consumed)
	}
	if set != "1:2" {
		t.Fatalf("BuildUIDSet = %q, want %q", set, "1:2")
	}

	set2, consumed2 := BuildUIDSet(infos, consumed, 1<<20)
	if consumed2 != 1 {
		t.Fatalf("second batch consumed = %d, want 1", consumed2)
	}
	if set2 != "33333" {
		t.Fatalf("second batch = %q, want %q", set2, "33333")
	}
}

func TestBuildUIDSetEmptyAtEnd(t *testing.T) {
	infos := infosWithUIDs("1")
	set, consumed := BuildUIDSet(infos, 1, 1<<20)
	if set != "" || consumed != 0 {
		t.Fatalf("BuildUIDSet past end = (%q, %d), want (\"\", 0)", set, consumed)
	}
}

func TestParseUIDSetExpandsRangesAndSingles(t *testing.T) {
	got, err := ParseUIDSet("1:3,7,9:10")
	if err != nil {
		t.Fatalf("ParseUIDSet: %v", err)
	}
	want := []uint32{1, 2, 3, 7, 9, 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseUIDSet = %v, want %v", got, want)
	}
}

func TestParseUIDSetRejectsNonNumeric(t *testing.T) {
	if _, err := ParseUIDSet("1,abc"); err == nil {
		t.Fatalf("ParseUIDSet(\"1,abc\") should fail")
	}
}

func TestBuildUIDSetRoundtripsThroughParse(t *testing.T) {
	// Spec §8's UID-set compaction round-trip law: parsing the generated
	// string must yield exactly the input UIDs, in order — never a UID that
	// was never in the folder. 5,6,7 are numerically contiguous; 20 is not,
	// so it must stay its own range rather than being swallowed into "5:20".
	infos := infosWithUIDs("5", "6", "7", "20")
	set, consumed := BuildUIDSet(infos, 0, 1<<20)
	if consumed != len(infos) {
		t.Fatalf("consumed = %d, want %d", consumed, len(infos))
	}
	if set != "5:7,20" {
		t.Fatalf("BuildUIDSet = %q, want %q", set, "5:7,20")
	}
	parsed, err := ParseUIDSet(set)
	if err != nil {
		t.Fatalf("ParseUIDSet(%q): %v", set, err)
	}
	want := []uint32{5, 6, 7, 20}
	if !reflect.DeepEqual(parsed, want) {
		t.Fatalf("roundtrip = %v, want %v", parsed, want)
	}
}
