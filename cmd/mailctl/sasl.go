package main

import (
	"strings"

	"github.com/emersion/go-sasl"
)

// saslAdapter wires a github.com/emersion/go-sasl client into imapengine's
// and popengine's narrow Sasl/Challenge interfaces (spec §6 external
// collaborator), giving the engines' AUTHENTICATE path a real mechanism
// instead of leaving it unexercised.
type saslAdapter struct {
	client    sasl.Client
	mechanism string
	started   bool
	responded bool
}

func newPlainSasl(username, password string) *saslAdapter {
	return &saslAdapter{client: sasl.NewPlainClient("", username, password), mechanism: "PLAIN"}
}

func newLoginSasl(username, password string) *saslAdapter {
	return &saslAdapter{client: sasl.NewLoginClient(username, password), mechanism: "LOGIN"}
}

func (a *saslAdapter) Mechanism() string { return strings.ToUpper(a.mechanism) }

// Challenge answers one AUTHENTICATE round trip: the first call ignores
// token (there is no initial-response channel over plain AUTHENTICATE) and
// returns the client's initial response; subsequent calls forward the
// server's decoded challenge to the underlying SASL client.
func (a *saslAdapter) Challenge(token []byte) ([]byte, error) {
	if !a.started {
		a.started = true
		_, ir, err := a.client.Start()
		if err != nil {
			return nil, err
		}
		a.responded = true
		return ir, nil
	}
	resp, err := a.client.Next(token)
	if err != nil {
		return nil, err
	}
	a.responded = true
	return resp, nil
}

// Authenticated reports whether the client has sent at least one response;
// the actual pass/fail verdict comes from the server's tagged OK/NO, which
// the engine checks independently after Authenticated returns true.
func (a *saslAdapter) Authenticated() bool { return a.responded }
