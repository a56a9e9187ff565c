package main

import (
	"crypto/tls"
	"fmt"
	"path/filepath"

	"github.com/eslider/mails/protocol/imapengine"
	"github.com/eslider/mails/protocol/imapfolder"
	"github.com/eslider/mails/protocol/netio"
)

func runIMAP(conn *netio.Conn, host, user, pass, mechanism, folderName, cacheDir string, upgrade bool, tlsCfg *tls.Config) error {
	e := imapengine.New(host, conn)
	if err := e.Greet(); err != nil {
		return fmt.Errorf("greet: %w", err)
	}
	if err := e.Capability(); err != nil {
		return fmt.Errorf("capability: %w", err)
	}
	if upgrade {
		if err := e.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
		if err := e.Capability(); err != nil {
			return fmt.Errorf("post-starttls capability: %w", err)
		}
	}

	if err := authenticateIMAP(e, user, pass, mechanism); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	f := imapfolder.NewFolder(folderName, folderName, '/')
	f.Engine = e
	f.ContentCacheDir = filepath.Join(cacheDir, "imap", host)

	entries, err := imapfolder.List(f, "", "*", false)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	for _, entry := range entries {
		fmt.Printf("imap folder: %s (sep=%c type=%d)\n", entry.Name, entry.Separator, entry.Type)
	}

	if err := imapfolder.Open(f, false); err != nil {
		return fmt.Errorf("open %s: %w", folderName, err)
	}
	fmt.Printf("imap %s: exists=%d recent=%d unseen=%d uidvalidity=%d messages=%d\n",
		folderName, f.Summary.Exists, f.Summary.Recent, f.Summary.Unseen,
		f.Summary.Header.UIDValidity, len(f.Summary.Messages))

	if err := imapfolder.Close(f, false); err != nil {
		return fmt.Errorf("close %s: %w", folderName, err)
	}
	return e.Logout()
}

func authenticateIMAP(e *imapengine.Engine, user, pass, mechanism string) error {
	switch mechanism {
	case "":
		return e.Login(user, pass)
	case "plain":
		return e.AuthenticateSASL(newPlainSasl(user, pass))
	case "login":
		return e.AuthenticateSASL(newLoginSasl(user, pass))
	default:
		return fmt.Errorf("unsupported -mech %q", mechanism)
	}
}
