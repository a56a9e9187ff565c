// Package imapfolder implements IMAP folder operations (spec §4.H): open,
// close, create, delete, rename, sync, expunge, append, copy, move, list,
// lsub, subscribe, all translated into commands on an imapengine.Engine.
package imapfolder

import (
	"sync"

	"github.com/eslider/mails/protocol/imapengine"
	"github.com/eslider/mails/protocol/summary"
)

// FolderType is the can-hold-folders / can-hold-messages bitmask (spec §3
// "Folder").
type FolderType uint8

const (
	TypeHoldsFolders FolderType = 1 << iota
	TypeHoldsMessages
)

// Mode is the SELECT/EXAMINE access mode, derived from the READ-ONLY /
// READ-WRITE response code.
type Mode int

const (
	ModeNone Mode = iota
	ModeReadOnly
	ModeReadWrite
)

// Subscription tracks whether the folder is subscribed (LSUB visibility).
type Subscription int

const (
	SubUnknown Subscription = iota
	Subscribed
	Unsubscribed
)

// changeBucket partitions a ChangeInfo's tracked UIDs (spec §3 "Folder-change
// info"): a uid lives in exactly one bucket at a time, so a later event
// moves it rather than duplicating it.
type changeBucket int

const (
	bucketNone changeBucket = iota
	bucketAdded
	bucketChanged
	bucketRemoved
)

// ChangeInfo aggregates one flush cycle's worth of added/changed/removed UID
// events (spec §3 "Folder-change info", grounded on spruce-folder.c's
// SpruceFolderChangeInfo).
type ChangeInfo struct {
	Added, Changed, Removed []string
	index                   map[string]changeBucket
}

// NewChangeInfo returns an empty, ready-to-use ChangeInfo.
func NewChangeInfo() *ChangeInfo {
	return &ChangeInfo{index: map[string]changeBucket{}}
}

// HasChanges reports whether any UID was recorded this flush cycle.
func (c *ChangeInfo) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Changed) > 0 || len(c.Removed) > 0
}

// Clear resets the change info for the next flush cycle.
func (c *ChangeInfo) Clear() {
	c.Added, c.Changed, c.Removed = nil, nil, nil
	c.index = map[string]changeBucket{}
}

func (c *ChangeInfo) bucketSlice(b changeBucket) *[]string {
	switch b {
	case bucketAdded:
		return &c.Added
	case bucketChanged:
		return &c.Changed
	case bucketRemoved:
		return &c.Removed
	default:
		return nil
	}
}

func removeString(s []string, uid string) []string {
	for i, v := range s {
		if v == uid {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func (c *ChangeInfo) move(uid string, to changeBucket) {
	if from := c.index[uid]; from != bucketNone {
		if slice := c.bucketSlice(from); slice != nil {
			*slice = removeString(*slice, uid)
		}
	}
	c.index[uid] = to
	if slice := c.bucketSlice(to); slice != nil {
		*slice = append(*slice, uid)
	}
}

// AddUID records a newly-seen UID. A uid previously marked removed within
// this flush is instead marked changed (it both left and rejoined).
func (c *ChangeInfo) AddUID(uid string) {
	switch c.index[uid] {
	case bucketNone:
		c.move(uid, bucketAdded)
	case bucketRemoved:
		c.move(uid, bucketChanged)
	}
}

// ChangeUID records a flag/metadata update. A uid not yet tracked this flush
// is treated as newly added (the caller hasn't seen it announced before).
func (c *ChangeInfo) ChangeUID(uid string) {
	if c.index[uid] == bucketNone {
		c.move(uid, bucketAdded)
	}
}

// RemoveUID records an expunge. A uid added earlier in the same flush simply
// drops out (net no-op); anything else is marked removed.
func (c *ChangeInfo) RemoveUID(uid string) {
	if c.index[uid] == bucketAdded {
		slice := c.bucketSlice(bucketAdded)
		*slice = removeString(*slice, uid)
		delete(c.index, uid)
		return
	}
	c.move(uid, bucketRemoved)
}

// Folder is one IMAP mailbox (spec §3 "Folder"): the protocol-visible name,
// a lazily-loaded summary, and open/freeze nesting counters.
type Folder struct {
	mu sync.Mutex

	Engine *imapengine.Engine

	name       string // caller-visible (decoded) name
	serverName string // UTF-7-encoded wire name
	fullName   string
	separator  byte

	Type         FolderType
	Mode         Mode
	Subscription Subscription
	PermanentFlags summary.Flags

	Summary *summary.Summary

	// Parent is the owning folder, if nested; renaming a parent rewrites
	// children's fullName via RenameChild.
	Parent *Folder

	// ContentCacheDir is the root of this folder's content-addressed message
	// body cache (spec §6 "Content cache").
	ContentCacheDir string

	openCount   int
	freezeCount int
	changes     *ChangeInfo
}

// NewFolder constructs a folder given its caller-visible name and the
// server-visible (UTF-7-encoded) wire form.
func NewFolder(name, serverName string, separator byte) *Folder {
	return &Folder{
		name:       name,
		serverName: serverName,
		fullName:   name,
		separator:  separator,
		changes:    NewChangeInfo(),
	}
}

// ServerName implements imapengine.Foldable: the wire-visible mailbox name.
func (f *Folder) ServerName() string { return f.serverName }

// Name returns the caller-visible (decoded) leaf name.
func (f *Folder) Name() string { return f.name }

// FullName returns the full path from the root, separator-joined.
func (f *Folder) FullName() string { return f.fullName }

// SetExists records the last EXISTS count from a SELECT/EXAMINE (implements
// imapengine's selectCounters interface).
func (f *Folder) SetExists(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Summary != nil {
		f.Summary.Exists = n
	}
}

// SetRecent records the last RECENT count.
func (f *Folder) SetRecent(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Summary != nil {
		f.Summary.Recent = n
	}
}

// SetUIDValidity records UIDVALIDITY and flags a change for FlushUpdates to
// notice (implements imapengine's selectRespSetters interface).
func (f *Folder) SetUIDValidity(v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Summary == nil {
		return
	}
	if f.Summary.Header.UIDValidity != 0 && f.Summary.Header.UIDValidity != v {
		f.Summary.UIDValidityChanged = true
	}
	f.Summary.Header.UIDValidity = v
}

// SetUIDNext records UIDNEXT.
func (f *Folder) SetUIDNext(v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Summary != nil {
		f.Summary.Header.NextUID = v
	}
}

// SetUnseen records UNSEEN (the sequence id of the first unseen message).
func (f *Folder) SetUnseen(v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Summary != nil {
		f.Summary.Unseen = v
	}
}

// SetPermanentFlags is invoked by the engine on an untagged FLAGS response
// (imapengine.step.go's handleUntagged1 FLAGS case).
func (f *Folder) SetPermanentFlags(flags uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PermanentFlags = summary.Flags(flags)
}

// Freeze suppresses change-notification flushes until a matching Thaw
// (spec §3 "freeze_count"; spec §15 EXPANSION grounded on spruce-folder.c's
// freeze/thaw counters).
func (f *Folder) Freeze() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freezeCount++
}

// Thaw reverses one Freeze call.
func (f *Folder) Thaw() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.freezeCount > 0 {
		f.freezeCount--
	}
}

// Frozen reports whether change notifications are currently suppressed.
func (f *Folder) Frozen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freezeCount > 0
}

// Changes returns the folder's pending ChangeInfo for inspection; callers
// typically call Clear() after consuming it.
func (f *Folder) Changes() *ChangeInfo {
	return f.changes
}

// renameChildPrefix rewrites fullName when an ancestor is renamed (spec §4.H
// rename: "emit the renamed signal so children rewrite their own full_name
// prefixes").
func (f *Folder) renameChildPrefix(oldPrefix, newPrefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fullName) >= len(oldPrefix) && f.fullName[:len(oldPrefix)] == oldPrefix {
		f.fullName = newPrefix + f.fullName[len(oldPrefix):]
	}
}
