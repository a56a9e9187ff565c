// Package mailerr defines the error taxonomy shared by the IMAP and POP3
// engines. Errors carry a Kind and are wrapped with eris so callers can match
// on Is(err, KindX) while still getting a stack trace in logs.
package mailerr

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind classifies a protocol-engine error per the error taxonomy.
type Kind int

const (
	Generic Kind = iota
	ServiceUnavailable
	ServiceNotConnected
	ServiceCantAuthenticate
	ServiceProtocolError
	StoreNoSuchFolder
	FolderIllegalName
	FolderNoSuchMessage
	FolderReadOnly
	TransportInvalidSender
	TransportInvalidRecipient
	TransportNoRecipients
	System
)

func (k Kind) String() string {
	switch k {
	case ServiceUnavailable:
		return "service-unavailable"
	case ServiceNotConnected:
		return "service-not-connected"
	case ServiceCantAuthenticate:
		return "service-cant-authenticate"
	case ServiceProtocolError:
		return "service-protocol-error"
	case StoreNoSuchFolder:
		return "store-no-such-folder"
	case FolderIllegalName:
		return "folder-illegal-name"
	case FolderNoSuchMessage:
		return "folder-no-such-message"
	case FolderReadOnly:
		return "folder-read-only"
	case TransportInvalidSender:
		return "transport-invalid-sender"
	case TransportInvalidRecipient:
		return "transport-invalid-recipient"
	case TransportNoRecipients:
		return "transport-no-recipients"
	case System:
		return "system"
	default:
		return "generic"
	}
}

// Error is the concrete error type returned by protocol-engine operations.
type Error struct {
	Kind Kind
	Msg  string
	// Errno holds the underlying errno-equivalent for Kind == System, if any.
	Errno error
}

func (e *Error) Error() string {
	if e.Errno != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Errno)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Errno
}

// New builds a Kind-tagged error, wrapped with eris for stack-trace capture.
func New(kind Kind, msg string) error {
	return eris.Wrap(&Error{Kind: kind, Msg: msg}, "")
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches errno (or any underlying cause) to a Kind, wrapped with eris.
func Wrap(kind Kind, msg string, cause error) error {
	return eris.Wrap(&Error{Kind: kind, Msg: msg, Errno: cause}, "")
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if x, ok := err.(*Error); ok {
			e = x
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
