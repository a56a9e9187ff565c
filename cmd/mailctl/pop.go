package main

import (
	"crypto/tls"
	"fmt"
	"path/filepath"

	"github.com/eslider/mails/protocol/netio"
	"github.com/eslider/mails/protocol/popengine"
	"github.com/eslider/mails/protocol/popfolder"
)

func runPOP(conn *netio.Conn, host, user, pass, mechanism, cacheDir string, upgrade bool, tlsCfg *tls.Config) error {
	e := popengine.New(host, conn)
	if err := e.Greet(); err != nil {
		return fmt.Errorf("greet: %w", err)
	}
	if err := e.Capa(); err != nil {
		return fmt.Errorf("capa: %w", err)
	}
	if upgrade {
		if err := e.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("stls: %w", err)
		}
		if err := e.Capa(); err != nil {
			return fmt.Errorf("post-stls capa: %w", err)
		}
	}

	if err := authenticatePOP(e, user, pass, mechanism); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	f := popfolder.NewFolder(e, filepath.Join(cacheDir, "pop3", host))
	if err := f.Open(); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	fmt.Printf("pop3 %s: %d messages\n", host, len(f.Slots))
	for _, slot := range f.Slots {
		fmt.Printf("  seq=%d uid=%s size=%d\n", slot.Seq, slot.UID, slot.Size)
	}

	if len(f.Slots) > 0 {
		path, err := f.Retrieve(f.Slots[0].Seq)
		if err != nil {
			return fmt.Errorf("retrieve %d: %w", f.Slots[0].Seq, err)
		}
		parsed, err := popfolder.ParseHeaders(path)
		if err != nil {
			return fmt.Errorf("parse headers %s: %w", path, err)
		}
		fmt.Printf("  message 1 subject=%q from=%q to=%v\n", parsed.Subject, parsed.From, parsed.To)
	}

	return f.Close()
}

func authenticatePOP(e *popengine.Engine, user, pass, mechanism string) error {
	switch mechanism {
	case "apop":
		return e.Apop(user, pass)
	case "plain":
		return e.AuthenticateSASL(newPlainSasl(user, pass))
	case "login":
		return e.AuthenticateSASL(newLoginSasl(user, pass))
	default:
		if err := e.User(user); err != nil {
			return err
		}
		return e.Pass(pass)
	}
}
