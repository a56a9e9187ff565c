package popfolder

import (
	"bufio"
	"net"
	"os"
	"strings"
	"testing"

	"github.com/eslider/mails/protocol/netio"
	"github.com/eslider/mails/protocol/popengine"
)

// scriptServer writes greeting, then answers each request line with the
// script entry matching its first word (e.g. "STAT", "UIDL", "LIST",
// "RETR", "DELE", "QUIT").
func scriptServer(t *testing.T, conn net.Conn, greeting string, script map[string]string) {
	t.Helper()
	go func() {
		defer conn.Close()
		if _, err := conn.Write([]byte(greeting)); err != nil {
			return
		}
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			key := strings.Fields(strings.TrimRight(line, "\r\n"))
			if len(key) == 0 {
				continue
			}
			resp, ok := script[key[0]]
			if !ok {
				conn.Write([]byte("-ERR unexpected command\r\n"))
				continue
			}
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()
}

// newTestFolder greets the engine (moving it to StateAuth/Transaction isn't
// required for Open/Retrieve/Close, which don't check state) and, if capa is
// non-empty, runs CAPA so HasCapability(CapUIDL) reflects the script.
func newTestFolder(t *testing.T, script map[string]string, capa string) (*Folder, net.Conn) {
	t.Helper()
	if capa != "" {
		script["CAPA"] = capa
	}
	client, server := net.Pipe()
	scriptServer(t, server, "+OK POP3 ready\r\n", script)

	nc := netio.New(nil, client, nil)
	e := popengine.New("test-host", nc)
	if err := e.Greet(); err != nil {
		t.Fatalf("Greet: %v", err)
	}
	if capa != "" {
		if err := e.Capa(); err != nil {
			t.Fatalf("Capa: %v", err)
		}
	}
	return NewFolder(e, ""), client
}

func TestOpenViaUIDLAssignsServerUIDs(t *testing.T) {
	script := map[string]string{
		"STAT": "+OK 2 300\r\n",
		"UIDL": "+OK\r\n1 uid-one\r\n2 uid-two\r\n.\r\n",
		"LIST": "+OK\r\n1 100\r\n2 200\r\n.\r\n",
	}
	f, client := newTestFolder(t, script, "+OK Capability list follows\r\nUIDL\r\n.\r\n")
	defer client.Close()

	if !f.Engine.HasCapability(popengine.CapUIDL) {
		t.Fatalf("CAPA should have advertised UIDL")
	}
	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(f.Slots) != 2 {
		t.Fatalf("Slots len = %d, want 2", len(f.Slots))
	}
	if f.Slots[0].UID != "uid-one" || f.Slots[0].Size != 100 {
		t.Fatalf("Slots[0] = %+v, want UID uid-one Size 100", f.Slots[0])
	}
	if f.Slots[1].UID != "uid-two" || f.Slots[1].Size != 200 {
		t.Fatalf("Slots[1] = %+v, want UID uid-two Size 200", f.Slots[1])
	}
}

func TestOpenViaListWhenUIDLUnsupported(t *testing.T) {
	script := map[string]string{
		"STAT": "+OK 2 300\r\n",
		"LIST": "+OK\r\n1 100\r\n2 200\r\n.\r\n",
	}
	f, client := newTestFolder(t, script, "")
	defer client.Close()

	if f.Engine.HasCapability(popengine.CapUIDL) {
		t.Fatalf("CapUIDL should be unset: CAPA was never run")
	}
	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(f.Slots) != 2 {
		t.Fatalf("Slots len = %d, want 2", len(f.Slots))
	}
	if f.Slots[0].UID != "1:100" || f.Slots[1].UID != "2:200" {
		t.Fatalf("Slots = %+v, want synthetic seq:size UIDs", f.Slots)
	}
}

func TestOpenEmptyMailboxClearsSlots(t *testing.T) {
	script := map[string]string{
		"STAT": "+OK 0 0\r\n",
	}
	f, client := newTestFolder(t, script, "")
	defer client.Close()
	f.Slots = []MessageSlot{{Seq: 1, UID: "stale"}}

	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Slots != nil {
		t.Fatalf("Slots = %v, want nil for an empty mailbox", f.Slots)
	}
}

func TestOpenViaUIDLFallsBackOnUIDLError(t *testing.T) {
	script := map[string]string{
		"STAT": "+OK 2 300\r\n",
		"UIDL": "-ERR not supported\r\n",
		"LIST": "+OK\r\n1 100\r\n2 200\r\n.\r\n",
	}
	f, client := newTestFolder(t, script, "+OK Capability list follows\r\nUIDL\r\n.\r\n")
	defer client.Close()

	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Slots[0].UID != "1:100" {
		t.Fatalf("Slots[0].UID = %q, want synthetic fallback UID", f.Slots[0].UID)
	}
}

func TestRetrieveCachesBodyByContentHash(t *testing.T) {
	body := "Subject: hi\r\n\r\nhello world\r\n"
	script := map[string]string{
		"RETR": "+OK 31 octets\r\n" + body + ".\r\n",
	}
	f, client := newTestFolder(t, script, "")
	defer client.Close()
	dir := t.TempDir()
	f.ContentCacheDir = dir

	path, err := f.Retrieve(1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	want := "Subject: hi\n\nhello world\n"
	if string(data) != want {
		t.Fatalf("cached body = %q, want %q", data, want)
	}

	// A second Retrieve of identical content reuses the same cache file.
	path2, err := f.Retrieve(1)
	if err != nil {
		t.Fatalf("second Retrieve: %v", err)
	}
	if path2 != path {
		t.Fatalf("second Retrieve path = %q, want same cache path %q", path2, path)
	}
}

func TestMarkDeletedDefersUntilClose(t *testing.T) {
	script := map[string]string{
		"DELE": "+OK deleted\r\n",
		"QUIT": "+OK bye\r\n",
	}
	f, client := newTestFolder(t, script, "")
	defer client.Close()
	f.Slots = []MessageSlot{{Seq: 1}, {Seq: 2}}
	f.MarkDeleted(2)

	if f.Slots[0].Deleted {
		t.Fatalf("Slots[0] should be untouched by MarkDeleted(2)")
	}
	if !f.Slots[1].Deleted {
		t.Fatalf("Slots[1] should be marked deleted")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
