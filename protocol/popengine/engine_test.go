package popengine

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/eslider/mails/protocol/netio"
)

// fakeServer reads lines from its half of a net.Pipe and replies according to
// script, a map from the expected (case-sensitive, trimmed) request line to
// the raw response bytes to write back (multi-line responses included).
func fakeServer(t *testing.T, conn net.Conn, greeting string, script map[string]string) {
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
			key := strings.TrimRight(line, "\r\n")
			resp, ok := script[key]
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

func TestEngineGreetCapaLoginHappyPath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	script := map[string]string{
		"CAPA": "+OK Capability list follows\r\nUIDL\r\nUSER\r\nSASL PLAIN LOGIN\r\nSTLS\r\n.\r\n",
		"USER alice": "+OK send password\r\n",
		"PASS hunter2": "+OK logged in\r\n",
		"QUIT": "+OK bye\r\n",
	}
	fakeServer(t, server, "+OK POP3 ready\r\n", script)

	nc := netio.New(nil, client, nil)
	e := New("test-host", nc)

	if err := e.Greet(); err != nil {
		t.Fatalf("Greet: %v", err)
	}
	if e.State() != StateAuth {
		t.Fatalf("State after Greet = %v, want auth", e.State())
	}

	if err := e.Capa(); err != nil {
		t.Fatalf("Capa: %v", err)
	}
	if !e.HasCapability(CapUIDL) || !e.HasCapability(CapUSER) || !e.HasCapability(CapSTLS) || !e.HasCapability(CapSASL) {
		t.Fatalf("capabilities = %b, missing expected bits", e.Capabilities())
	}
	mechs := e.AuthTypes()
	foundPlain, foundLogin := false, false
	for _, m := range mechs {
		if m == "PLAIN" {
			foundPlain = true
		}
		if m == "LOGIN" {
			foundLogin = true
		}
	}
	if !foundPlain || !foundLogin {
		t.Fatalf("AuthTypes = %v, want PLAIN and LOGIN", mechs)
	}

	if err := e.User("alice"); err != nil {
		t.Fatalf("User: %v", err)
	}
	if err := e.Pass("hunter2"); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if e.State() != StateTransaction {
		t.Fatalf("State after Pass = %v, want transaction", e.State())
	}

	if err := e.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if e.State() != StateUpdate {
		t.Fatalf("State after Quit = %v, want update", e.State())
	}
}

func TestEngineUserRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	script := map[string]string{
		"USER ghost": "-ERR no such user\r\n",
	}
	fakeServer(t, server, "+OK POP3 ready\r\n", script)

	nc := netio.New(nil, client, nil)
	e := New("test-host", nc)
	if err := e.Greet(); err != nil {
		t.Fatalf("Greet: %v", err)
	}
	if err := e.User("ghost"); err == nil {
		t.Fatalf("User(ghost) should fail")
	}
}

func TestEngineStat(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	script := map[string]string{
		"STAT": "+OK 3 1200\r\n",
	}
	fakeServer(t, server, "+OK POP3 ready\r\n", script)

	nc := netio.New(nil, client, nil)
	e := New("test-host", nc)
	if err := e.Greet(); err != nil {
		t.Fatalf("Greet: %v", err)
	}
	count, octets, err := e.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if count != 3 || octets != 1200 {
		t.Fatalf("Stat = (%d, %d), want (3, 1200)", count, octets)
	}
}

func TestEngineGreetRejectsMissingOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		server.Write([]byte("garbage banner\r\n"))
	}()

	nc := netio.New(nil, client, nil)
	e := New("test-host", nc)
	if err := e.Greet(); err == nil {
		t.Fatalf("Greet should reject a banner without +OK")
	}
}
