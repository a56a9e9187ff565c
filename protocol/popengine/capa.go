package popengine

import (
	"strconv"
	"strings"

	"github.com/eslider/mails/protocol/mailerr"
)

// Capa sends CAPA and parses the multi-line reply (spec §4.F): each line is
// matched against a fixed table, some with inline sub-parsers.
func (e *Engine) Capa() error {
	var capaErr error
	cmd := &Command{Line: "CAPA\r\n"}
	cmd.Handler = func(eng *Engine, c *Command, kind RespKind, rest string) error {
		if kind != RespOK {
			capaErr = mailerr.Newf(mailerr.ServiceProtocolError, "CAPA rejected by %s: %s", eng.Host, rest)
			return nil
		}
		return eng.readCapaLines()
	}
	e.Queue(cmd)
	if err := e.drainQueue(); err != nil {
		return err
	}
	return capaErr
}

// readCapaLines reads CAPA's multi-line body until the lone "." terminator.
func (e *Engine) readCapaLines() error {
	e.capabilities &^= capaResetMask
	e.authTypes = map[string]bool{}
	for {
		line, incomplete, err := e.stream.Line()
		if err != nil {
			return err
		}
		if incomplete {
			return mailerr.Newf(mailerr.ServiceProtocolError, "connection closed mid-CAPA from %s", e.Host)
		}
		if line == "." {
			return nil
		}
		e.parseCapaLine(line)
	}
}

func (e *Engine) parseCapaLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch strings.ToUpper(fields[0]) {
	case "LOGIN-DELAY":
		e.capabilities |= CapLoginDelay
		if len(fields) > 1 {
			if v, err := strconv.ParseUint(fields[1], 10, 32); err == nil {
				e.loginDelay = uint32(v)
			}
		}
	case "PIPELINING":
		e.capabilities |= CapPipelining
	case "RESP-CODES":
		e.capabilities |= CapRespCodes
	case "SASL":
		e.capabilities |= CapSASL
		for _, mech := range fields[1:] {
			e.authTypes[strings.ToUpper(mech)] = true
		}
	case "STLS":
		e.capabilities |= CapSTLS
	case "TOP":
		e.capabilities |= CapTOP
	case "UIDL":
		e.capabilities |= CapUIDL
	case "USER":
		e.capabilities |= CapUSER
	}
}
