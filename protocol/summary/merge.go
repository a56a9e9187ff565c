package summary

// Diff is the delta between an original and locally-changed server-flag
// snapshot (spec §4.G "flag three-way merge"), grounded on
// spruce-imap-utils.c's `flags_diff_t`.
type Diff struct {
	Changed Flags // bits that differ between original and local
	Bits    Flags // local's values at the changed bits
}

// ComputeDiff is `spruce_imap_flags_diff`: changed = original XOR local;
// bits = local AND changed.
func ComputeDiff(original, local Flags) Diff {
	changed := original ^ local
	return Diff{Changed: changed, Bits: local & changed}
}

// Apply is `spruce_imap_flags_merge`: folds the diff onto a fresh flag set.
func (d Diff) Apply(flags Flags) Flags {
	return (flags &^ d.Changed) | d.Bits
}

// MergeFlags is `spruce_imap_merge_flags`: reconciles a new server flag
// snapshot with local changes made since `original` (spec §4.G).
//
//	diff    = original XOR local                  ("changed locally")
//	merged  = (server AND NOT diff) OR (local AND diff)
func MergeFlags(original, local, server Flags) Flags {
	return ComputeDiff(original, local).Apply(server)
}

// DirtySync describes one STORE batch the folder layer needs to issue to
// push local flag changes to the server (spec §4.G "group changes by flag
// and by polarity").
type DirtySync struct {
	Flag   Flags
	Adding bool
	UIDs   []string
}

// PlanDirtySync scans infos for the DIRTY bit and groups the flags that
// differ from ServerFlags (masked to permanentFlags) into STORE batches, one
// per (flag, polarity) pair. The caller issues `UID STORE <set>
// +FLAGS.SILENT (\Flag)` / `-FLAGS.SILENT` per returned DirtySync, batching
// UIDs with BuildUIDSet, then clears DIRTY and sets ServerFlags = Flags &
// permanentFlags on success.
func PlanDirtySync(infos []*IMAPMessageInfo, permanentFlags Flags) []DirtySync {
	adds := map[Flags][]string{}
	dels := map[Flags][]string{}

	for _, info := range infos {
		if info.Flags&FlagDirty == 0 {
			continue
		}
		changed := (info.Flags ^ info.ServerFlags) & permanentFlags
		if changed == 0 {
			continue
		}
		for bit := Flags(1); bit <= FlagSeen; bit <<= 1 {
			if changed&bit == 0 {
				continue
			}
			if info.Flags&bit != 0 {
				adds[bit] = append(adds[bit], info.UID)
			} else {
				dels[bit] = append(dels[bit], info.UID)
			}
		}
	}

	var plans []DirtySync
	for bit := Flags(1); bit <= FlagSeen; bit <<= 1 {
		if uids, ok := adds[bit]; ok {
			plans = append(plans, DirtySync{Flag: bit, Adding: true, UIDs: uids})
		}
		if uids, ok := dels[bit]; ok {
			plans = append(plans, DirtySync{Flag: bit, Adding: false, UIDs: uids})
		}
	}
	return plans
}
