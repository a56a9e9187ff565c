package summary

// SaveIncrement is the resumable FETCH-ALL checkpoint interval (spec §4.G):
// every SaveIncrement completed infos, the completed prefix is flushed to
// disk.
const SaveIncrement = 1024

// FetchBits tracks which of the five UID-FETCH-ALL fields have arrived for
// one accumulator slot.
type FetchBits uint8

const (
	HaveEnvelope FetchBits = 1 << iota
	HaveFlags
	HaveInternalDate
	HaveSize
	HaveUID
)

const haveAll = HaveEnvelope | HaveFlags | HaveInternalDate | HaveSize | HaveUID

// Complete reports whether every required field has arrived.
func (b FetchBits) Complete() bool { return b&haveAll == haveAll }

// AccumSlot is one pending or completed message-info during a resumable
// FETCH-ALL.
type AccumSlot struct {
	Info *IMAPMessageInfo
	Have FetchBits
}

// Accumulator reconciles untagged FETCH responses against sequence ids that
// may arrive out of the originally-requested order (spec §4.G "FETCH-ALL
// resume").
type Accumulator struct {
	// FirstSeq is the sequence id accumulator slot 0 currently represents.
	FirstSeq uint32
	Slots    []AccumSlot

	// flushed counts how many leading, contiguous, completed slots have
	// already been written to the summary, as reported through MarkFlushed.
	flushed int
}

// NewAccumulator starts a fetch-all rooted at firstSeq (the sequence id the
// `UID FETCH <firstSeq>:*` request named).
func NewAccumulator(firstSeq uint32) *Accumulator {
	return &Accumulator{FirstSeq: firstSeq}
}

// slot returns the accumulator index for seq, growing the slice forward or
// shifting it backward as needed (spec §4.G points 1-2: other clients may
// have expunged messages in the interval, shifting sequence ids down, or the
// server may report ids beyond the current accumulator length).
func (a *Accumulator) slot(seq uint32) int {
	if seq < a.FirstSeq {
		delta := int(a.FirstSeq - seq)
		grown := make([]AccumSlot, delta+len(a.Slots))
		copy(grown[delta:], a.Slots)
		a.Slots = grown
		a.FirstSeq = seq
		a.flushed = 0 // a shift invalidates any prior flush-prefix accounting
	}
	idx := int(seq - a.FirstSeq)
	if idx >= len(a.Slots) {
		a.Slots = append(a.Slots, make([]AccumSlot, idx+1-len(a.Slots))...)
	}
	if a.Slots[idx].Info == nil {
		a.Slots[idx].Info = &IMAPMessageInfo{MessageInfo: MessageInfo{UserTags: map[string]string{}}}
	}
	return idx
}

// SetEnvelope records the ENVELOPE fields for seq.
func (a *Accumulator) SetEnvelope(seq uint32, sender, from, replyTo, to, cc, bcc, subject string, dateSent uint32, msgID MessageID, refs []MessageID) {
	i := a.slot(seq)
	info := a.Slots[i].Info
	info.Sender, info.From, info.ReplyTo = sender, from, replyTo
	info.To, info.Cc, info.Bcc, info.Subject = to, cc, bcc, subject
	info.DateSent = dateSent
	info.MessageID = msgID
	info.References = refs
	a.Slots[i].Have |= HaveEnvelope
}

// SetFlags records FLAGS (both the merged local view and the server's raw
// snapshot).
func (a *Accumulator) SetFlags(seq uint32, flags Flags) {
	i := a.slot(seq)
	a.Slots[i].Info.Flags = flags
	a.Slots[i].Info.ServerFlags = flags
	a.Slots[i].Have |= HaveFlags
}

// SetInternalDate records INTERNALDATE (as a received-date epoch second).
func (a *Accumulator) SetInternalDate(seq uint32, epoch uint32) {
	i := a.slot(seq)
	a.Slots[i].Info.DateReceived = epoch
	a.Slots[i].Have |= HaveInternalDate
}

// SetSize records RFC822.SIZE.
func (a *Accumulator) SetSize(seq uint32, size uint32) {
	i := a.slot(seq)
	a.Slots[i].Info.Size = size
	a.Slots[i].Have |= HaveSize
}

// SetUID records the UID-FETCH UID field.
func (a *Accumulator) SetUID(seq uint32, uid string) {
	i := a.slot(seq)
	a.Slots[i].Info.UID = uid
	a.Slots[i].Have |= HaveUID
}

// ReadyPrefix returns the completed, not-yet-flushed infos at the front of
// the accumulator, stopping at the first incomplete or empty slot (spec
// §4.G "every SAVE_INCREMENT completed infos, flush the completed prefix").
// Call MarkFlushed after persisting them.
func (a *Accumulator) ReadyPrefix() []*IMAPMessageInfo {
	var out []*IMAPMessageInfo
	for i := a.flushed; i < len(a.Slots); i++ {
		if !a.Slots[i].Have.Complete() {
			break
		}
		out = append(out, a.Slots[i].Info)
	}
	return out
}

// ShouldCheckpoint reports whether enough newly-completed infos have
// accumulated to warrant a checkpoint flush.
func (a *Accumulator) ShouldCheckpoint() bool {
	return len(a.ReadyPrefix()) >= SaveIncrement
}

// MarkFlushed advances the flushed-prefix counter by n after the caller has
// persisted that many infos from ReadyPrefix.
func (a *Accumulator) MarkFlushed(n int) {
	a.flushed += n
}

// LastFlushedUID returns the UID of the last flushed info, used to build the
// `UID FETCH <last_uid+1>:* (ALL)` resume command on reconnect.
func (a *Accumulator) LastFlushedUID() (string, bool) {
	if a.flushed == 0 {
		return "", false
	}
	return a.Slots[a.flushed-1].Info.UID, true
}

// CourierBugSlots reports the sequence ids still unfilled (NULL) at the end
// of a completed fetch cycle: the server omitted an untagged FETCH for a
// sequence id it implied exists via EXISTS (spec §4.G "Courier-IMAP bug").
func (a *Accumulator) CourierBugSlots() []uint32 {
	var out []uint32
	for i, s := range a.Slots {
		if s.Info == nil || s.Have == 0 {
			out = append(out, a.FirstSeq+uint32(i))
		}
	}
	return out
}
