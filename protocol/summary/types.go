package summary

// MessageID is a 64-bit hash of a Message-ID header value (spec §3 "Message
// info"), split hi/lo the way the on-disk format stores it.
type MessageID struct {
	Hi, Lo uint32
}

// MessageInfo is one envelope entry in a folder summary (spec §3 "Message
// info").
type MessageInfo struct {
	UID string

	Sender  string
	From    string
	ReplyTo string
	To      string
	Cc      string
	Bcc     string
	Subject string

	DateSent     uint32
	DateReceived uint32

	MessageID  MessageID
	References []MessageID

	Flags Flags
	Size  uint32
	Lines uint32

	UserFlags []string
	UserTags  map[string]string
}

// NewMessageInfo returns a zero-value info with its maps ready to use.
func NewMessageInfo() *MessageInfo {
	return &MessageInfo{UserTags: map[string]string{}}
}

// IMAPMessageInfo extends MessageInfo with the last-known server flag state,
// enabling the three-way merge in merge.go (spec §3 "IMAP subclass adds
// server_flags").
type IMAPMessageInfo struct {
	MessageInfo
	ServerFlags Flags
}

// Header is the summary's on-disk leading block (spec §4.G).
type Header struct {
	Version   uint32
	Flags     uint32
	NextUID   uint32
	Timestamp uint32
	Count     uint32
	Unread    uint32
	Deleted   uint32
}

// IMAPHeader appends the IMAP subclass's uidvalidity field.
type IMAPHeader struct {
	Header
	UIDValidity uint32
}

// CurrentVersion is the on-disk format version this codec reads/writes.
const CurrentVersion = 1

// Summary is a folder's full in-memory index: the header plus every
// message-info, keyed for O(1) UID lookup (spec §3 "Summary").
type Summary struct {
	Filename string
	Header   IMAPHeader

	Exists              uint32
	Recent              uint32
	Unseen              uint32
	UIDValidityChanged  bool
	UpdateFlags         bool

	Messages []*IMAPMessageInfo
	byUID    map[string]*IMAPMessageInfo
}

// NewSummary constructs an empty, lazily-loadable summary for filename.
func NewSummary(filename string) *Summary {
	return &Summary{
		Filename: filename,
		Header:   IMAPHeader{Header: Header{Version: CurrentVersion}},
		byUID:    map[string]*IMAPMessageInfo{},
	}
}

// ByUID looks up a message-info by UID.
func (s *Summary) ByUID(uid string) (*IMAPMessageInfo, bool) {
	info, ok := s.byUID[uid]
	return info, ok
}

// Add appends info to the summary and indexes it by UID.
func (s *Summary) Add(info *IMAPMessageInfo) {
	s.Messages = append(s.Messages, info)
	s.byUID[info.UID] = info
}

// Remove drops the message-info with the given UID, if present.
func (s *Summary) Remove(uid string) {
	info, ok := s.byUID[uid]
	if !ok {
		return
	}
	delete(s.byUID, uid)
	for i, m := range s.Messages {
		if m == info {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			break
		}
	}
}

// recount recomputes Header.Count/Unread/Deleted from the message list
// (spec §4.G header_save semantics: unread/deleted are derived, not stored
// independently of the flag bits).
func (s *Summary) recount() {
	s.Header.Count = uint32(len(s.Messages))
	var unread, deleted uint32
	for _, m := range s.Messages {
		if m.Flags&FlagSeen == 0 {
			unread++
		}
		if m.Flags&FlagDeleted != 0 {
			deleted++
		}
	}
	s.Header.Unread = unread
	s.Header.Deleted = deleted
}
