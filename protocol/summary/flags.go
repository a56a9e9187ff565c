// Package summary implements the folder summary cache (spec §4.G): a binary
// per-folder index of message envelopes with flag-diff merging, UID-set
// compaction, and incremental FETCH-ALL resume.
package summary

// Flags is the message-info flag bitmask (spec §3 DATA MODEL). System bits
// mirror \Answered \Deleted \Draft \Flagged \Recent \Seen; extension bits
// cover provider-specific markers; Dirty means "flag change pending sync to
// the server".
type Flags uint32

const (
	FlagAnswered Flags = 1 << iota
	FlagDeleted
	FlagDraft
	FlagFlagged
	FlagRecent
	FlagSeen

	FlagForwarded
	FlagMultipart
	FlagSigned
	FlagEncrypted
	FlagJunk
	FlagNotJunk

	FlagDirty
)

// SystemMask covers the IMAP-visible \Answered..\Seen bits; a folder's
// PERMANENTFLAGS mask for STORE purposes should normally be intersected with this
// (extension bits and Dirty never go on the wire).
const SystemMask = FlagAnswered | FlagDeleted | FlagDraft | FlagFlagged | FlagRecent | FlagSeen

var flagNames = []struct {
	name string
	bit  Flags
}{
	{`\Answered`, FlagAnswered},
	{`\Deleted`, FlagDeleted},
	{`\Draft`, FlagDraft},
	{`\Flagged`, FlagFlagged},
	{`\Recent`, FlagRecent},
	{`\Seen`, FlagSeen},
}

// FlagFromName maps an IMAP system flag atom (e.g. `\Seen`) to its bit. `\*`
// and unrecognised flags return 0 (they belong in a folder's user-flag set,
// not the system bitmask).
func FlagFromName(name string) Flags {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.bit
		}
	}
	return 0
}

// Names returns the IMAP flag atoms set in f (system bits only).
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}
