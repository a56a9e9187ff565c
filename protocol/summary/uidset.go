package summary

import (
	"strconv"
	"strings"
)

// uidRange is a "range" in the textual UID set: a single uid, or a
// contiguous-numeric-UID run rendered uid:uid (spec §4.G "UID-set
// compaction", grounded on spruce-imap-utils.c's `_uidset_range`).
type uidRange struct {
	lastNum     int  // last UID's own numeric value, for contiguity checks
	numeric     bool // whether lastNum is meaningful (the UID parsed as decimal)
	first, last string
}

func (r uidRange) String() string {
	if r.first == r.last {
		return r.first
	}
	return r.first + ":" + r.last
}

// uidNum parses a UID string as a decimal sequence number; a UID that isn't
// purely numeric can never extend or be extended by a contiguous run.
func uidNum(uid string) (int, bool) {
	n, err := strconv.Atoi(uid)
	if err != nil {
		return 0, false
	}
	return n, true
}

// BuildUIDSet builds a textual UID set `a,b:c,d:e,...` from infos[cur:],
// stopping once adding the next message would reach or exceed maxLen bytes.
// Two UIDs are folded into one range only when the later one's own numeric
// value is exactly one more than the former's (spec §8 scenario 4), not
// merely because they sit at adjacent array positions. It returns the
// rendered set and the number of leading messages it consumed; callers
// re-invoke with the new offset for the next batch (spec §4.G).
func BuildUIDSet(infos []*IMAPMessageInfo, cur int, maxLen int) (string, int) {
	if cur >= len(infos) {
		return "", 0
	}

	var ranges []uidRange
	setLen := 0
	consumed := 0

	for i := cur; i < len(infos); i++ {
		uid := infos[i].UID
		num, numeric := uidNum(uid)

		if len(ranges) == 0 {
			ranges = append(ranges, uidRange{lastNum: num, numeric: numeric, first: uid, last: uid})
			setLen = len(uid)
			consumed++
			continue
		}

		tail := &ranges[len(ranges)-1]
		if numeric && tail.numeric && num == tail.lastNum+1 {
			extra := len(uid)
			if tail.first == tail.last {
				extra++ // the new ":" separator
			} else {
				extra -= len(tail.last) // the old "last" is replaced
			}
			if setLen+extra >= maxLen {
				break
			}
			setLen += extra
			tail.lastNum = num
			tail.last = uid
			consumed++
			continue
		}

		extra := len(uid) + 1 // leading ","
		if setLen+extra >= maxLen {
			break
		}
		ranges = append(ranges, uidRange{lastNum: num, numeric: numeric, first: uid, last: uid})
		setLen += extra
		consumed++
	}

	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ","), consumed
}

// ParseUIDSet expands a textual UID set back into individual UID strings
// (numeric UIDs only — the folder layer never needs to expand a set whose
// members aren't decimal). Used by tests and by APPENDUID/COPYUID
// bookkeeping that wants to enumerate a returned destination set.
func ParseUIDSet(set string) ([]uint32, error) {
	var out []uint32
	for _, part := range strings.Split(set, ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, ":"); ok {
			loN, err := strconv.ParseUint(lo, 10, 32)
			if err != nil {
				return nil, err
			}
			hiN, err := strconv.ParseUint(hi, 10, 32)
			if err != nil {
				return nil, err
			}
			for v := loN; v <= hiN; v++ {
				out = append(out, uint32(v))
			}
			continue
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
