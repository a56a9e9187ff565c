package summary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// The on-disk layout is big-endian and length-prefixed throughout (spec
// §4.G): every string is `len:u32` followed by `len` raw bytes, no NUL.
// This mirrors spruce-folder-summary.c's encode/decode helpers field for
// field, with the IMAP subclass's uidvalidity/server_flags appended where
// the original appends them.

func encodeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func decodeUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func encodeString(w io.Writer, s string) error {
	if err := encodeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func decodeString(r io.Reader) (string, error) {
	n, err := decodeUint32(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// SaveHeader writes the IMAP header block: version, flags, nextuid,
// timestamp, count, unread, deleted, uidvalidity.
func (s *Summary) SaveHeader(w io.Writer) error {
	s.recount()
	h := s.Header
	for _, v := range []uint32{h.Version, h.Flags, h.NextUID, h.Timestamp, h.Count, h.Unread, h.Deleted, h.UIDValidity} {
		if err := encodeUint32(w, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadHeader reads the IMAP header block.
func (s *Summary) LoadHeader(r io.Reader) error {
	fields := make([]*uint32, 8)
	h := &s.Header
	fields[0], fields[1], fields[2], fields[3] = &h.Version, &h.Flags, &h.NextUID, &h.Timestamp
	fields[4], fields[5], fields[6], fields[7] = &h.Count, &h.Unread, &h.Deleted, &h.UIDValidity
	for _, f := range fields {
		v, err := decodeUint32(r)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// SaveMessageInfo writes one message-info entry (spec §4.G field order).
func SaveMessageInfo(w io.Writer, info *IMAPMessageInfo) error {
	strs := []string{info.Sender, info.From, info.ReplyTo, info.To, info.Cc, info.Bcc, info.Subject}
	for _, s := range strs {
		if err := encodeString(w, s); err != nil {
			return err
		}
	}
	if err := encodeUint32(w, info.DateSent); err != nil {
		return err
	}
	if err := encodeUint32(w, info.DateReceived); err != nil {
		return err
	}
	if err := encodeString(w, info.UID); err != nil {
		return err
	}
	if err := encodeUint32(w, info.MessageID.Hi); err != nil {
		return err
	}
	if err := encodeUint32(w, info.MessageID.Lo); err != nil {
		return err
	}
	if err := encodeUint32(w, uint32(len(info.References))); err != nil {
		return err
	}
	for _, ref := range info.References {
		if err := encodeUint32(w, ref.Hi); err != nil {
			return err
		}
		if err := encodeUint32(w, ref.Lo); err != nil {
			return err
		}
	}
	if err := encodeUint32(w, uint32(info.Flags)); err != nil {
		return err
	}
	if err := encodeUint32(w, info.Size); err != nil {
		return err
	}
	if err := encodeUint32(w, info.Lines); err != nil {
		return err
	}
	if err := encodeUint32(w, uint32(len(info.UserFlags))); err != nil {
		return err
	}
	for _, f := range info.UserFlags {
		if err := encodeString(w, f); err != nil {
			return err
		}
	}
	if err := encodeUint32(w, uint32(len(info.UserTags))); err != nil {
		return err
	}
	for name, value := range info.UserTags {
		if err := encodeString(w, name); err != nil {
			return err
		}
		if err := encodeString(w, value); err != nil {
			return err
		}
	}
	return encodeUint32(w, uint32(info.ServerFlags))
}

// LoadMessageInfo reads one message-info entry.
func LoadMessageInfo(r io.Reader) (*IMAPMessageInfo, error) {
	info := &IMAPMessageInfo{MessageInfo: MessageInfo{UserTags: map[string]string{}}}
	fieldPtrs := []*string{&info.Sender, &info.From, &info.ReplyTo, &info.To, &info.Cc, &info.Bcc, &info.Subject}
	for _, p := range fieldPtrs {
		v, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		*p = v
	}
	var err error
	if info.DateSent, err = decodeUint32(r); err != nil {
		return nil, err
	}
	if info.DateReceived, err = decodeUint32(r); err != nil {
		return nil, err
	}
	if info.UID, err = decodeString(r); err != nil {
		return nil, err
	}
	if info.MessageID.Hi, err = decodeUint32(r); err != nil {
		return nil, err
	}
	if info.MessageID.Lo, err = decodeUint32(r); err != nil {
		return nil, err
	}
	refCount, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	info.References = make([]MessageID, refCount)
	for i := range info.References {
		if info.References[i].Hi, err = decodeUint32(r); err != nil {
			return nil, err
		}
		if info.References[i].Lo, err = decodeUint32(r); err != nil {
			return nil, err
		}
	}
	flags, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	info.Flags = Flags(flags)
	if info.Size, err = decodeUint32(r); err != nil {
		return nil, err
	}
	if info.Lines, err = decodeUint32(r); err != nil {
		return nil, err
	}
	nFlags, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	info.UserFlags = make([]string, nFlags)
	for i := range info.UserFlags {
		if info.UserFlags[i], err = decodeString(r); err != nil {
			return nil, err
		}
	}
	nTags, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nTags; i++ {
		name, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		value, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		if name != "" {
			info.UserTags[name] = value
		}
	}
	serverFlags, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	info.ServerFlags = Flags(serverFlags)
	return info, nil
}

// Save writes the header followed by every message-info in order.
func (s *Summary) Save(w io.Writer) error {
	if err := s.SaveHeader(w); err != nil {
		return err
	}
	for _, info := range s.Messages {
		if err := SaveMessageInfo(w, info); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the header and exactly Header.Count message-infos, replacing
// the summary's in-memory contents. Corruption partway through a record is
// reported rather than silently truncated — callers fall back to a full
// re-fetch per spec §4.G's "loading failed, do it the hard way" path.
func (s *Summary) Load(r io.Reader) error {
	if err := s.LoadHeader(r); err != nil {
		return err
	}
	messages := make([]*IMAPMessageInfo, 0, s.Header.Count)
	byUID := make(map[string]*IMAPMessageInfo, s.Header.Count)
	for i := uint32(0); i < s.Header.Count; i++ {
		info, err := LoadMessageInfo(r)
		if err != nil {
			return fmt.Errorf("summary: truncated at message %d/%d: %w", i, s.Header.Count, err)
		}
		messages = append(messages, info)
		byUID[info.UID] = info
	}
	s.Messages = messages
	s.byUID = byUID
	return nil
}
