package summary

import "testing"

func fillComplete(a *Accumulator, seq uint32, uid string) {
	a.SetEnvelope(seq, "s", "f", "", "t", "", "", "subj", 1, MessageID{}, nil)
	a.SetFlags(seq, FlagSeen)
	a.SetInternalDate(seq, 2)
	a.SetSize(seq, 3)
	a.SetUID(seq, uid)
}

func TestAccumulatorReadyPrefixStopsAtIncomplete(t *testing.T) {
	a := NewAccumulator(1)
	fillComplete(a, 1, "100")
	fillComplete(a, 2, "101")
	// seq 3 only gets flags, never completes.
	a.SetFlags(3, FlagSeen)
	fillComplete(a, 4, "103")

	ready := a.ReadyPrefix()
	if len(ready) != 2 {
		t.Fatalf("ReadyPrefix len = %d, want 2 (stops before incomplete seq 3)", len(ready))
	}
	if ready[0].UID != "100" || ready[1].UID != "101" {
		t.Fatalf("ReadyPrefix UIDs = [%s %s], want [100 101]", ready[0].UID, ready[1].UID)
	}
}

func TestAccumulatorOutOfOrderFields(t *testing.T) {
	a := NewAccumulator(5)
	a.SetUID(5, "500")
	a.SetSize(5, 42)
	a.SetInternalDate(5, 99)
	a.SetFlags(5, FlagFlagged)
	a.SetEnvelope(5, "s", "f", "", "t", "", "", "subj", 1, MessageID{}, nil)

	ready := a.ReadyPrefix()
	if len(ready) != 1 {
		t.Fatalf("ReadyPrefix len = %d, want 1", len(ready))
	}
	if ready[0].UID != "500" || ready[0].Size != 42 {
		t.Fatalf("ready[0] = %+v, unexpected fields", ready[0])
	}
}

func TestAccumulatorMarkFlushedAndLastFlushedUID(t *testing.T) {
	a := NewAccumulator(1)
	fillComplete(a, 1, "10")
	fillComplete(a, 2, "11")
	if _, ok := a.LastFlushedUID(); ok {
		t.Fatalf("LastFlushedUID should report false before any flush")
	}
	a.MarkFlushed(len(a.ReadyPrefix()))
	uid, ok := a.LastFlushedUID()
	if !ok || uid != "11" {
		t.Fatalf("LastFlushedUID = (%q, %v), want (11, true)", uid, ok)
	}
	// Nothing new ready until more slots complete.
	if len(a.ReadyPrefix()) != 0 {
		t.Fatalf("ReadyPrefix after full flush should be empty, got %d", len(a.ReadyPrefix()))
	}
}

func TestAccumulatorSlotGrowsForwardOnHigherSeq(t *testing.T) {
	a := NewAccumulator(1)
	a.SetUID(4, "uid4")
	if len(a.Slots) != 4 {
		t.Fatalf("Slots len = %d, want 4 after referencing seq 4 from FirstSeq 1", len(a.Slots))
	}
	if a.Slots[3].Info.UID != "uid4" {
		t.Fatalf("Slots[3].Info.UID = %q, want uid4", a.Slots[3].Info.UID)
	}
}

func TestAccumulatorSlotShiftsBackwardOnLowerSeq(t *testing.T) {
	a := NewAccumulator(5)
	a.SetUID(5, "uid5")
	a.MarkFlushed(0) // flushed starts at 0 anyway; exercised for clarity

	a.SetUID(2, "uid2")
	if a.FirstSeq != 2 {
		t.Fatalf("FirstSeq = %d, want 2 after a lower-seq reference", a.FirstSeq)
	}
	if len(a.Slots) != 4 {
		t.Fatalf("Slots len = %d, want 4 (seq 2..5)", len(a.Slots))
	}
	if a.Slots[0].Info.UID != "uid2" || a.Slots[3].Info.UID != "uid5" {
		t.Fatalf("Slots[0]/[3] UIDs = %q/%q, want uid2/uid5", a.Slots[0].Info.UID, a.Slots[3].Info.UID)
	}
}

func TestAccumulatorCourierBugSlots(t *testing.T) {
	a := NewAccumulator(1)
	fillComplete(a, 1, "1")
	// seq 2 is referenced implicitly by growing to seq 3, but never filled.
	fillComplete(a, 3, "3")

	missing := a.CourierBugSlots()
	if len(missing) != 1 || missing[0] != 2 {
		t.Fatalf("CourierBugSlots = %v, want [2]", missing)
	}
}

func TestShouldCheckpointFollowsSaveIncrement(t *testing.T) {
	a := NewAccumulator(1)
	for seq := uint32(1); seq <= SaveIncrement; seq++ {
		fillComplete(a, seq, "x")
	}
	if !a.ShouldCheckpoint() {
		t.Fatalf("ShouldCheckpoint should be true once SaveIncrement infos are ready")
	}
}
