// Package popfolder implements POP3 mailbox operations (spec §4.I):
// UIDL-preferred / LIST-fallback UID assignment, RETR streaming into the
// content cache, and deferred DELE-on-close.
package popfolder

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/eslider/mails/protocol/popengine"
)

// MessageSlot is one mailbox entry: its POP3 sequence number, assigned UID,
// and size as reported by LIST (spec §4.I "UID strategy").
type MessageSlot struct {
	Seq  int
	UID  string
	Size int64

	// Deleted is set by MarkDeleted; the folder issues DELE for every marked
	// slot at Close, never eagerly (spec §4.I "deferred DELE-on-close").
	Deleted bool
}

// Folder is one POP3 mailbox (there is exactly one per account: POP3 has no
// folder hierarchy).
type Folder struct {
	Engine *popengine.Engine

	// ContentCacheDir is the root of the content-addressed message body
	// cache, reusing the teacher's internal/sync/pop3 sha256-hash/file-name
	// convention (spec §6 "Content cache").
	ContentCacheDir string

	Slots []MessageSlot
}

// NewFolder constructs a folder bound to engine, caching message bodies
// under cacheDir.
func NewFolder(engine *popengine.Engine, cacheDir string) *Folder {
	return &Folder{Engine: engine, ContentCacheDir: cacheDir}
}

// Open issues STAT, then assigns each message a stable UID: UIDL if the
// server advertises it, otherwise a LIST-derived synthetic UID of
// "<seq>:<size>" (spec §4.I "UID strategy"; the synthetic form degrades
// gracefully across a session without claiming cross-session stability LIST
// alone can't provide).
func (f *Folder) Open() error {
	count, _, err := f.Engine.Stat()
	if err != nil {
		return err
	}
	if count == 0 {
		f.Slots = nil
		return nil
	}

	if f.Engine.HasCapability(popengine.CapUIDL) {
		if err := f.openViaUIDL(count); err != nil {
			return err
		}
		return nil
	}
	return f.openViaList(count)
}

func (f *Folder) openViaUIDL(count int) error {
	var parsed []MessageSlot
	cmd := &popengine.Command{
		Line: "UIDL\r\n",
		Handler: func(e *popengine.Engine, cmd *popengine.Command, kind popengine.RespKind, rest string) error {
			if kind != popengine.RespOK {
				return nil
			}
			lines, err := e.ReadTextLines()
			if err != nil {
				return err
			}
			for _, line := range lines {
				seq, uid, ok := strings.Cut(strings.TrimSpace(line), " ")
				if !ok {
					continue
				}
				n, err := strconv.Atoi(seq)
				if err != nil {
					continue
				}
				parsed = append(parsed, MessageSlot{Seq: n, UID: uid})
			}
			return nil
		},
	}
	f.Engine.Queue(cmd)
	if _, err := f.Engine.Iterate(); err != nil {
		return err
	}
	if cmd.Status == popengine.StatusErr {
		return f.openViaList(count)
	}
	sizes, err := f.fetchSizes(count)
	if err != nil {
		return err
	}
	for i := range parsed {
		if sz, ok := sizes[parsed[i].Seq]; ok {
			parsed[i].Size = sz
		}
	}
	f.Slots = parsed
	return nil
}

func (f *Folder) openViaList(count int) error {
	sizes, err := f.fetchSizes(count)
	if err != nil {
		return err
	}
	slots := make([]MessageSlot, 0, count)
	for seq := 1; seq <= count; seq++ {
		size := sizes[seq]
		slots = append(slots, MessageSlot{
			Seq:  seq,
			UID:  fmt.Sprintf("%d:%d", seq, size),
			Size: size,
		})
	}
	f.Slots = slots
	return nil
}

func (f *Folder) fetchSizes(count int) (map[int]int64, error) {
	sizes := map[int]int64{}
	cmd := &popengine.Command{
		Line: "LIST\r\n",
		Handler: func(e *popengine.Engine, cmd *popengine.Command, kind popengine.RespKind, rest string) error {
			if kind != popengine.RespOK {
				return nil
			}
			lines, err := e.ReadTextLines()
			if err != nil {
				return err
			}
			for _, line := range lines {
				seqStr, sizeStr, ok := strings.Cut(strings.TrimSpace(line), " ")
				if !ok {
					continue
				}
				seq, err := strconv.Atoi(seqStr)
				if err != nil {
					continue
				}
				size, err := strconv.ParseInt(sizeStr, 10, 64)
				if err != nil {
					continue
				}
				sizes[seq] = size
			}
			return nil
		},
	}
	f.Engine.Queue(cmd)
	if _, err := f.Engine.Iterate(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// Retrieve downloads message seq's full body via RETR, writing it into the
// content cache keyed by a sha256 hash of its bytes (the same
// checksum-filename convention internal/sync/pop3 uses), and returns the
// cached file's path.
func (f *Folder) Retrieve(seq int) (string, error) {
	var path string
	cmd := &popengine.Command{
		Line: fmt.Sprintf("RETR %d\r\n", seq),
		Handler: func(e *popengine.Engine, cmd *popengine.Command, kind popengine.RespKind, rest string) error {
			if kind != popengine.RespOK {
				return nil
			}
			e.EnterData()
			var body []byte
			for {
				chunk, err := e.ReadData()
				if err != nil {
					return err
				}
				body = append(body, chunk...)
				if e.EOD() {
					break
				}
			}
			p, err := f.storeInCache(body)
			if err != nil {
				return err
			}
			path = p
			return nil
		},
	}
	f.Engine.Queue(cmd)
	if _, err := f.Engine.Iterate(); err != nil {
		return "", err
	}
	if cmd.Status == popengine.StatusErr {
		return "", fmt.Errorf("popfolder: RETR %d: %w", seq, cmd.Err)
	}
	return path, nil
}

func (f *Folder) storeInCache(body []byte) (string, error) {
	sum := sha256.Sum256(body)
	hash := fmt.Sprintf("%x", sum[:8])
	if err := os.MkdirAll(f.ContentCacheDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(f.ContentCacheDir, hash+".eml")
	if _, err := os.Stat(path); err == nil {
		return path, nil // already cached, nothing further to write
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ParsedMessage holds the headers Retrieve's caller typically wants without
// re-reading the whole cached body.
type ParsedMessage struct {
	Subject string
	From    string
	To      []string
}

// ParseHeaders reads the cached .eml at path and extracts its envelope
// headers via go-message/mail, the same MIME layer the teacher's search
// indexer (internal/search/eml) is built on.
func ParseHeaders(path string) (*ParsedMessage, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	mr, err := mail.CreateReader(bufio.NewReader(fh))
	if err != nil {
		return nil, err
	}
	h := mr.Header
	subject, _ := h.Subject()
	var from string
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	var to []string
	if addrs, err := h.AddressList("To"); err == nil {
		for _, a := range addrs {
			to = append(to, a.Address)
		}
	}
	return &ParsedMessage{Subject: subject, From: from, To: to}, nil
}

// MarkDeleted flags slot seq for deletion at Close; no DELE is sent until
// then (spec §4.I "deferred DELE-on-close": a mid-session abort must not
// lose messages the caller only tentatively marked).
func (f *Folder) MarkDeleted(seq int) {
	for i := range f.Slots {
		if f.Slots[i].Seq == seq {
			f.Slots[i].Deleted = true
			return
		}
	}
}

// Close sends DELE for every slot marked deleted, then QUIT. DELE failures
// are logged and skipped rather than aborting the whole close (one bad
// sequence number shouldn't strand the rest of the batch).
func (f *Folder) Close() error {
	for _, slot := range f.Slots {
		if !slot.Deleted {
			continue
		}
		cmd := &popengine.Command{Line: fmt.Sprintf("DELE %d\r\n", slot.Seq)}
		f.Engine.Queue(cmd)
		if _, err := f.Engine.Iterate(); err != nil {
			return err
		}
		if cmd.Status == popengine.StatusErr {
			log.Printf("popfolder: DELE %d rejected: %v", slot.Seq, cmd.Err)
		}
	}
	cmd := &popengine.Command{Line: "QUIT\r\n"}
	f.Engine.Queue(cmd)
	_, err := f.Engine.Iterate()
	return err
}

var _ io.Closer = (*closerAdapter)(nil)

type closerAdapter struct{ f *Folder }

func (c *closerAdapter) Close() error { return c.f.Close() }

// AsCloser adapts f to io.Closer for callers that want a generic resource
// handle (e.g. a defer in the caller's connection-setup code).
func (f *Folder) AsCloser() io.Closer { return &closerAdapter{f: f} }
