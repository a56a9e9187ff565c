package imapfolder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eslider/mails/protocol/imapengine"
	"github.com/eslider/mails/protocol/mailerr"
	"github.com/eslider/mails/protocol/summary"
)

// MaxLineLen bounds UID-set batches built against this folder's server
// (spec §4.G "UID-set compaction ... fits a byte budget"). A real client
// would size this from the server's advertised line-length limit; absent
// that signal, a conservative default keeps commands well under common
// server limits.
const MaxLineLen = 4096

// Open loads the cached summary header (if any), SELECTs (or EXAMINEs) the
// folder, then reconciles the summary against the server (spec §4.H "open").
func Open(f *Folder, write bool) error {
	if f.Summary == nil {
		f.Summary = summary.NewSummary(f.ContentCacheDir)
	}
	if err := f.Engine.Select(f, write); err != nil {
		return err
	}
	if write {
		f.Mode = ModeReadWrite
	} else {
		f.Mode = ModeReadOnly
	}
	f.openCount++
	return FlushUpdates(f, false)
}

// FlushUpdates reconciles the in-memory summary with the server (spec §4.H
// "flush_updates selects one of three paths").
func FlushUpdates(f *Folder, forceFlagRefresh bool) error {
	s := f.Summary

	if s.UIDValidityChanged {
		s.Messages = nil
		s.UIDValidityChanged = false
		return fetchAll(f, 1)
	}

	if s.Exists < s.Header.Count || forceFlagRefresh {
		return refreshFlags(f)
	}

	if s.Exists > s.Header.Count {
		return fetchAll(f, s.Header.Count+1)
	}

	return nil
}

// refreshFlags issues a flag-only `UID FETCH first:last (FLAGS)` and merges
// the result via summary.MergeFlags.
func refreshFlags(f *Folder) error {
	s := f.Summary
	if len(s.Messages) == 0 {
		return nil
	}
	cmd := &imapengine.Command{Verb: "FETCH", Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
	cmd.Untagged["FETCH"] = func(e *imapengine.Engine, c *imapengine.Command, tok imapengine.Token) error {
		return handleFlagsOnlyFetch(e, f, tok.Num)
	}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
		imapengine.DirAtom{Value: fmt.Sprintf("UID FETCH 1:%d (FLAGS)", len(s.Messages))})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	return f.Engine.Do(cmd)
}

// handleFlagsOnlyFetch parses a `(FLAGS (...))` attribute list and merges
// the server's snapshot with any locally-dirty flags for that sequence id
// via summary.MergeFlags (spec §4.G "flag-only refresh path").
func handleFlagsOnlyFetch(e *imapengine.Engine, f *Folder, seq uint32) error {
	tok, err := e.NextToken()
	if err != nil {
		return err
	}
	if tok.Kind != imapengine.Char || tok.Ch != '(' {
		e.DrainToEOL()
		return nil
	}
	var server summary.Flags
	for {
		nameTok, err := e.NextToken()
		if err != nil {
			return err
		}
		if nameTok.Kind == imapengine.Char && nameTok.Ch == ')' {
			break
		}
		if nameTok.Kind != imapengine.Atom || strings.ToUpper(nameTok.Str) != "FLAGS" {
			continue
		}
		flags, err := e.ParseFlagList()
		if err != nil {
			return err
		}
		server = summary.Flags(flags)
	}

	if int(seq) < 1 || int(seq) > len(f.Summary.Messages) {
		return nil
	}
	info := f.Summary.Messages[seq-1]
	merged := summary.MergeFlags(info.ServerFlags, info.Flags, server)
	if merged != info.Flags {
		f.changes.ChangeUID(info.UID)
	}
	info.Flags = merged
	info.ServerFlags = server
	return nil
}

// fetchAll issues the resumable `UID FETCH <firstSeq>:* (FLAGS INTERNALDATE
// RFC822.SIZE ENVELOPE)` and drives it to completion via a
// summary.Accumulator, checkpointing every summary.SaveIncrement infos
// (spec §4.G "FETCH-ALL resume").
func fetchAll(f *Folder, firstSeq uint32) error {
	acc := summary.NewAccumulator(firstSeq)

	cmd := &imapengine.Command{Verb: "FETCH", Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
	cmd.Untagged["FETCH"] = func(e *imapengine.Engine, c *imapengine.Command, tok imapengine.Token) error {
		if err := parseFetchResponse(e, acc, tok.Num); err != nil {
			return err
		}
		if acc.ShouldCheckpoint() {
			flushAccumulator(f, acc, false)
		}
		return nil
	}

	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
		imapengine.DirAtom{Value: fmt.Sprintf("UID FETCH %d:* (FLAGS INTERNALDATE RFC822.SIZE ENVELOPE UID)", firstSeq)})
	if err != nil {
		return err
	}
	cmd.Parts = parts

	if err := f.Engine.Do(cmd); err != nil {
		flushAccumulator(f, acc, true)
		return err
	}
	flushAccumulator(f, acc, true)

	// A nonempty CourierBugSlots here means the server omitted an untagged
	// FETCH for a sequence id its own EXISTS count implied existed; the
	// caller's next FlushUpdates (triggered by the next SELECT's EXISTS)
	// will simply re-request from the last flushed UID.
	return nil
}

func flushAccumulator(f *Folder, acc *summary.Accumulator, final bool) {
	ready := acc.ReadyPrefix()
	if len(ready) == 0 && !final {
		return
	}
	for _, info := range ready {
		f.Summary.Add(info)
	}
	acc.MarkFlushed(len(ready))
}

// Close syncs flags, then CLOSEs (if expunging) or UNSELECTs, persisting the
// summary either way (spec §4.H "close").
func Close(f *Folder, expunge bool) error {
	if err := SyncFlags(f); err != nil {
		return err
	}
	var err error
	if expunge {
		err = f.Engine.CloseMailbox()
	} else {
		err = f.Engine.Unselect()
	}
	f.Mode = ModeNone
	if f.openCount > 0 {
		f.openCount--
	}
	return err
}

// SyncFlags pushes locally-dirty flag changes to the server via batched
// `UID STORE ... FLAGS.SILENT` commands (spec §4.G "DIRTY bit drives the
// next sync").
func SyncFlags(f *Folder) error {
	plans := summary.PlanDirtySync(f.Summary.Messages, f.PermanentFlags)
	for _, plan := range plans {
		if err := storeFlags(f, plan); err != nil {
			return err
		}
	}
	for _, info := range f.Summary.Messages {
		if info.Flags&summary.FlagDirty != 0 {
			info.Flags &^= summary.FlagDirty
			info.ServerFlags = info.Flags & f.PermanentFlags
		}
	}
	return nil
}

func storeFlags(f *Folder, plan summary.DirtySync) error {
	byUID := map[string]*summary.IMAPMessageInfo{}
	for _, info := range f.Summary.Messages {
		byUID[info.UID] = info
	}
	cur := 0
	for cur < len(plan.UIDs) {
		infos := make([]*summary.IMAPMessageInfo, len(plan.UIDs))
		for i, uid := range plan.UIDs {
			infos[i] = byUID[uid]
		}
		set, n := summary.BuildUIDSet(infos, cur, MaxLineLen)
		if n == 0 {
			break
		}
		sign := "+"
		if !plan.Adding {
			sign = "-"
		}
		flagNames := strings.Join(summary.Flags(plan.Flag).Names(), " ")
		cmd := &imapengine.Command{Verb: "STORE", Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
		parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
			imapengine.DirAtom{Value: fmt.Sprintf("UID STORE %s %sFLAGS.SILENT (%s)", set, sign, flagNames)})
		if err != nil {
			return err
		}
		cmd.Parts = parts
		if err := f.Engine.Do(cmd); err != nil {
			return err
		}
		if cmd.Result != imapengine.ResultOK {
			return mailerr.Newf(mailerr.ServiceProtocolError, "UID STORE rejected by %s", f.Engine.Host)
		}
		cur += n
	}
	return nil
}

// Create creates the folder. asContainer hints "folder only, never holds
// messages" by appending the hierarchy separator (spec §4.H "create").
func Create(f *Folder, asContainer bool) error {
	name := f.ServerName()
	if asContainer && f.separator != 0 && !strings.HasSuffix(name, string(f.separator)) {
		name += string(f.separator)
	}
	cmd := &imapengine.Command{Verb: "CREATE", Untagged: map[string]imapengine.UntaggedHandler{}}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: "CREATE "}, imapengine.DirMaybeQuoted{Value: name})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}
	if cmd.Result != imapengine.ResultOK {
		return mailerr.Newf(mailerr.FolderIllegalName, "CREATE %q rejected by %s", name, f.Engine.Host)
	}
	return nil
}

// Delete removes the folder. INBOX and the root ("") may never be deleted
// (spec §4.H "delete").
func Delete(f *Folder) error {
	if f.fullName == "" || strings.EqualFold(f.fullName, "INBOX") {
		return mailerr.New(mailerr.FolderIllegalName, "refusing to delete the root or INBOX")
	}
	cmd := &imapengine.Command{Verb: "DELETE", Untagged: map[string]imapengine.UntaggedHandler{}}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: "DELETE "}, imapengine.DirFolder{Folder: f})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}
	if cmd.Result != imapengine.ResultOK {
		return mailerr.Newf(mailerr.StoreNoSuchFolder, "DELETE %q rejected by %s", f.fullName, f.Engine.Host)
	}
	return nil
}

// Rename renames the folder, rewriting the UTF-7 name and every open
// descendant's fullName prefix (spec §4.H "rename").
func Rename(f *Folder, newName string, children []*Folder) error {
	if f.fullName == "" || strings.EqualFold(f.fullName, "INBOX") {
		return mailerr.New(mailerr.FolderIllegalName, "refusing to rename the root or INBOX")
	}
	newServer := EncodeUTF7(newName)
	cmd := &imapengine.Command{Verb: "RENAME", Untagged: map[string]imapengine.UntaggedHandler{}}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
		imapengine.DirAtom{Value: "RENAME "}, imapengine.DirFolder{Folder: f}, imapengine.DirAtom{Value: " "}, imapengine.DirMaybeQuoted{Value: newServer})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}
	if cmd.Result != imapengine.ResultOK {
		return mailerr.Newf(mailerr.FolderIllegalName, "RENAME to %q rejected by %s", newName, f.Engine.Host)
	}
	oldPrefix := f.fullName
	f.name = newName
	f.serverName = newServer
	f.fullName = newName
	for _, child := range children {
		child.renameChildPrefix(oldPrefix+string(f.separator), f.fullName+string(f.separator))
	}
	return nil
}

// Expunge permanently removes messages marked \Deleted. Without UIDPLUS it
// does the manual-expunge dance: temporarily un-delete every deleted message
// NOT in uids, EXPUNGE, then re-mark (spec §4.H "expunge(uids)").
func Expunge(f *Folder, uids []string, hasUIDPlus bool) error {
	if hasUIDPlus {
		return uidExpunge(f, uids)
	}

	target := map[string]bool{}
	for _, u := range uids {
		target[u] = true
	}
	var unmarked []*summary.IMAPMessageInfo
	for _, info := range f.Summary.Messages {
		if info.Flags&summary.FlagDeleted != 0 && !target[info.UID] {
			info.Flags &^= summary.FlagDeleted
			info.Flags |= summary.FlagDirty
			unmarked = append(unmarked, info)
		}
	}
	if err := SyncFlags(f); err != nil {
		return err
	}

	cmd := &imapengine.Command{Verb: "EXPUNGE", Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
	cmd.Untagged["EXPUNGE"] = func(e *imapengine.Engine, c *imapengine.Command, tok imapengine.Token) error {
		idx := int(tok.Num) - 1
		if idx >= 0 && idx < len(f.Summary.Messages) {
			removed := f.Summary.Messages[idx]
			f.Summary.Remove(removed.UID)
			f.changes.RemoveUID(removed.UID)
		}
		return nil
	}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: "EXPUNGE"})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}

	for _, info := range unmarked {
		info.Flags |= summary.FlagDeleted
		info.Flags |= summary.FlagDirty
	}
	return SyncFlags(f)
}

func uidExpunge(f *Folder, uids []string) error {
	infos := make([]*summary.IMAPMessageInfo, len(uids))
	for i, uid := range uids {
		info, _ := f.Summary.ByUID(uid)
		infos[i] = info
	}
	cur := 0
	for cur < len(infos) {
		set, n := summary.BuildUIDSet(infos, cur, MaxLineLen)
		if n == 0 {
			break
		}
		cmd := &imapengine.Command{Verb: "EXPUNGE", Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
		parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: fmt.Sprintf("UID EXPUNGE %s", set)})
		if err != nil {
			return err
		}
		cmd.Parts = parts
		if err := f.Engine.Do(cmd); err != nil {
			return err
		}
		for _, info := range infos[cur : cur+n] {
			if info != nil {
				f.Summary.Remove(info.UID)
				f.changes.RemoveUID(info.UID)
			}
		}
		cur += n
	}
	return nil
}

// AppendDate formats a time as IMAP's APPEND literal-date argument:
// `dd-Mmm-yyyy HH:MM:SS ±zzzz` (spec §4.H "append").
func AppendDate(t time.Time) string {
	return t.Format("02-Jan-2006 15:04:05 -0700")
}

// Append uploads a message body, retrying once after TRYCREATE (spec §4.H
// "append"). On UIDPLUS success with an APPENDUID code whose uidvalidity
// matches the summary's, the new message-info is synthesised locally
// without a re-fetch.
func Append(f *Folder, body string, flags summary.Flags, date time.Time) error {
	flagNames := strings.Join((flags & f.PermanentFlags).Names(), " ")
	buildCmd := func() *imapengine.Command {
		cmd := &imapengine.Command{Verb: "APPEND", Untagged: map[string]imapengine.UntaggedHandler{}}
		parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
			imapengine.DirAtom{Value: "APPEND "}, imapengine.DirFolder{Folder: f},
			imapengine.DirAtom{Value: fmt.Sprintf(" (%s) ", flagNames)},
			imapengine.DirMaybeQuoted{Value: AppendDate(date)},
			imapengine.DirAtom{Value: " "},
			imapengine.DirLiteral{Payload: imapengine.StringLiteral{Data: body, Canon: true}},
		)
		if err != nil {
			return nil
		}
		cmd.Parts = parts
		return cmd
	}

	cmd := buildCmd()
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}

	if cmd.Result == imapengine.ResultNO {
		for _, rc := range cmd.RespCodes {
			if rc.Kind == imapengine.RCTryCreate {
				if err := Create(f, false); err != nil {
					return err
				}
				cmd = buildCmd()
				if err := f.Engine.Do(cmd); err != nil {
					return err
				}
				break
			}
		}
	}

	if cmd.Result != imapengine.ResultOK {
		return mailerr.Newf(mailerr.ServiceProtocolError, "APPEND rejected by %s", f.Engine.Host)
	}

	for _, rc := range cmd.RespCodes {
		if rc.Kind == imapengine.RCAppendUID && rc.UIDValidity == f.Summary.Header.UIDValidity {
			info := summary.NewMessageInfo()
			info.UID = strconv.FormatUint(uint64(rc.UID), 10)
			info.Flags = flags & f.PermanentFlags
			info.DateSent = uint32(date.Unix())
			f.Summary.Add(&summary.IMAPMessageInfo{MessageInfo: *info, ServerFlags: info.Flags})
			f.changes.AddUID(info.UID)
		}
	}
	return nil
}

// Copy batches uids into UID-sets and issues `UID COPY <set> <dest>` (spec
// §4.H "copy/move").
func Copy(f, dest *Folder, uids []string) error {
	return copyOrMove(f, dest, uids, false, false)
}

// Move copies then locally marks sources DELETED|DIRTY (the real delete
// happens on next sync), unless the server advertises GroupWise XGWMOVE, in
// which case a single XGWMOVE does both atomically (spec §4.H "copy/move").
func Move(f, dest *Folder, uids []string, hasXGWMove bool) error {
	return copyOrMove(f, dest, uids, true, hasXGWMove)
}

func copyOrMove(f, dest *Folder, uids []string, move, xgwmove bool) error {
	infos := make([]*summary.IMAPMessageInfo, len(uids))
	for i, uid := range uids {
		info, _ := f.Summary.ByUID(uid)
		infos[i] = info
	}
	verb, bareVerb := "UID COPY", "COPY"
	if move && xgwmove {
		verb, bareVerb = "UID XGWMOVE", "XGWMOVE"
	}
	cur := 0
	for cur < len(infos) {
		set, n := summary.BuildUIDSet(infos, cur, MaxLineLen)
		if n == 0 {
			break
		}
		cmd := &imapengine.Command{Verb: bareVerb, Folder: f, Untagged: map[string]imapengine.UntaggedHandler{}}
		parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
			imapengine.DirAtom{Value: fmt.Sprintf("%s %s ", verb, set)}, imapengine.DirFolder{Folder: dest})
		if err != nil {
			return err
		}
		cmd.Parts = parts
		if err := f.Engine.Do(cmd); err != nil {
			return err
		}
		if cmd.Result != imapengine.ResultOK {
			return mailerr.Newf(mailerr.ServiceProtocolError, "%s rejected by %s", verb, f.Engine.Host)
		}
		if move && !xgwmove {
			for _, info := range infos[cur : cur+n] {
				if info != nil {
					info.Flags |= summary.FlagDeleted | summary.FlagDirty
				}
			}
		}
		cur += n
	}
	return nil
}

// ListEntry is one server-reported mailbox from LIST/LSUB (spec §4.H
// "list/lsub").
type ListEntry struct {
	Name      string
	Separator byte
	Type      FolderType
}

// List translates glob into an IMAP wildcard pattern, issues LIST (or LSUB),
// deduplicates repeated entries by name (unioning their flags), and applies
// the caller's exact glob semantics client-side (spec §4.H "list/lsub").
func List(f *Folder, reference, glob string, subscribedOnly bool) ([]ListEntry, error) {
	pattern := globToIMAPPattern(glob)
	verb := "LIST"
	if subscribedOnly {
		verb = "LSUB"
	}

	byName := map[string]*ListEntry{}
	var order []string

	cmd := &imapengine.Command{Verb: verb, Untagged: map[string]imapengine.UntaggedHandler{}}
	cmd.Untagged[verb] = func(e *imapengine.Engine, c *imapengine.Command, tok imapengine.Token) error {
		entry, err := parseListEntry(e)
		if err != nil {
			return err
		}
		if existing, ok := byName[entry.Name]; ok {
			existing.Type |= entry.Type
			return nil
		}
		byName[entry.Name] = entry
		order = append(order, entry.Name)
		return nil
	}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(),
		imapengine.DirAtom{Value: verb + " "}, imapengine.DirMaybeQuoted{Value: reference},
		imapengine.DirAtom{Value: " "}, imapengine.DirMaybeQuoted{Value: pattern})
	if err != nil {
		return nil, err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return nil, err
	}
	if cmd.Result != imapengine.ResultOK {
		return nil, mailerr.Newf(mailerr.ServiceProtocolError, "%s rejected by %s", verb, f.Engine.Host)
	}

	entries := make([]ListEntry, 0, len(order))
	for _, name := range order {
		entries = append(entries, *byName[name])
	}
	return applyGlob(entries, glob), nil
}

// parseListEntry reads one LIST/LSUB response body: `(attr attr...) "sep"
// name` (spec §4.H "list/lsub").
func parseListEntry(e *imapengine.Engine) (*ListEntry, error) {
	tok, err := e.NextToken()
	if err != nil {
		return nil, err
	}
	noSelect := false
	if tok.Kind == imapengine.Char && tok.Ch == '(' {
		for {
			t, err := e.NextToken()
			if err != nil {
				return nil, err
			}
			if t.Kind == imapengine.Char && t.Ch == ')' {
				break
			}
			if t.Kind == imapengine.Flag && strings.EqualFold(t.Str, `\Noselect`) {
				noSelect = true
			}
		}
	}

	sepTok, err := e.NextToken()
	if err != nil {
		return nil, err
	}
	var sep byte
	if sepTok.Kind == imapengine.QString && len(sepTok.Str) > 0 {
		sep = sepTok.Str[0]
	}

	nameTok, err := e.NextToken()
	if err != nil {
		return nil, err
	}
	e.DrainToEOL()

	typ := TypeHoldsFolders
	if !noSelect {
		typ |= TypeHoldsMessages
	}
	return &ListEntry{Name: DecodeUTF7(nameTok.Str), Separator: sep, Type: typ}, nil
}

// globToIMAPPattern collapses '?'/'*' runs into '%' (non-recursive) so a
// trailing `/foo` can still expand server-side; exact glob semantics are
// re-applied client-side afterward.
func globToIMAPPattern(glob string) string {
	var out strings.Builder
	runStart := -1
	for i, r := range glob {
		if r == '?' || r == '*' {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			out.WriteByte('%')
			runStart = -1
		}
		out.WriteRune(r)
	}
	if runStart >= 0 {
		out.WriteByte('%')
	}
	return out.String()
}

// applyGlob applies the caller's original glob exactly, since the
// server-side pattern above is a coarser over-approximation.
func applyGlob(entries []ListEntry, glob string) []ListEntry {
	var out []ListEntry
	for _, e := range entries {
		if matchGlob(glob, e.Name) {
			out = append(out, e)
		}
	}
	return out
}

func matchGlob(pattern, name string) bool {
	return globMatch([]rune(pattern), []rune(name))
}

func globMatch(pattern, name []rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(name); i++ {
			if globMatch(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(name) == 0 {
			return false
		}
		return globMatch(pattern[1:], name[1:])
	default:
		if len(name) == 0 || pattern[0] != name[0] {
			return false
		}
		return globMatch(pattern[1:], name[1:])
	}
}

// Subscribe issues SUBSCRIBE for the folder.
func Subscribe(f *Folder) error {
	cmd := &imapengine.Command{Verb: "SUBSCRIBE", Untagged: map[string]imapengine.UntaggedHandler{}}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: "SUBSCRIBE "}, imapengine.DirFolder{Folder: f})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}
	if cmd.Result == imapengine.ResultOK {
		f.Subscription = Subscribed
	}
	return nil
}

// Unsubscribe issues UNSUBSCRIBE for the folder.
func Unsubscribe(f *Folder) error {
	cmd := &imapengine.Command{Verb: "UNSUBSCRIBE", Untagged: map[string]imapengine.UntaggedHandler{}}
	parts, err := imapengine.Build(f.Engine.HasLiteralPlus(), imapengine.DirAtom{Value: "UNSUBSCRIBE "}, imapengine.DirFolder{Folder: f})
	if err != nil {
		return err
	}
	cmd.Parts = parts
	if err := f.Engine.Do(cmd); err != nil {
		return err
	}
	if cmd.Result == imapengine.ResultOK {
		f.Subscription = Unsubscribed
	}
	return nil
}
