package mailerr

import (
	"errors"
	"testing"
)

func TestKindStringKnownAndUnknown(t *testing.T) {
	cases := map[Kind]string{
		ServiceUnavailable:      "service-unavailable",
		ServiceNotConnected:     "service-not-connected",
		ServiceCantAuthenticate: "service-cant-authenticate",
		ServiceProtocolError:    "service-protocol-error",
		StoreNoSuchFolder:       "store-no-such-folder",
		FolderIllegalName:       "folder-illegal-name",
		FolderNoSuchMessage:     "folder-no-such-message",
		FolderReadOnly:          "folder-read-only",
		TransportInvalidSender:  "transport-invalid-sender",
		TransportNoRecipients:   "transport-no-recipients",
		System:                  "system",
		Generic:                 "generic",
		Kind(999):               "generic",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestNewCarriesKind(t *testing.T) {
	err := New(FolderNoSuchMessage, "no such message 42")
	if !Is(err, FolderNoSuchMessage) {
		t.Fatalf("Is(New(FolderNoSuchMessage, ...), FolderNoSuchMessage) = false")
	}
	if Is(err, FolderReadOnly) {
		t.Fatalf("Is(err, FolderReadOnly) should be false for a FolderNoSuchMessage error")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(StoreNoSuchFolder, "folder %q not found", "Archive")
	if err == nil {
		t.Fatalf("Newf returned nil")
	}
	if !Is(err, StoreNoSuchFolder) {
		t.Fatalf("Is(err, StoreNoSuchFolder) = false")
	}
}

func TestWrapAttachesErrno(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(System, "read failed", cause)
	if !Is(err, System) {
		t.Fatalf("Is(err, System) = false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("boring error"), Generic) {
		t.Fatalf("Is(plain error, Generic) should be false: plain errors carry no Kind")
	}
}

func TestIsFalseForNil(t *testing.T) {
	if Is(nil, Generic) {
		t.Fatalf("Is(nil, ...) should be false")
	}
}
