package summary

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// envelopeWordDecoder decodes RFC 2047 encoded-words in ENVELOPE header
// fields, falling back to x/text's charset registry for anything beyond
// UTF-8/US-ASCII (spec §9 EXPANSION: original_source's spruce-imap-utils.c
// charset-conversion helpers, supplied here via the ecosystem equivalent).
var envelopeWordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		cs := strings.ToLower(strings.TrimSpace(charset))
		if cs == "utf-8" || cs == "us-ascii" || cs == "ascii" || cs == "" {
			return input, nil
		}
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("summary: unsupported charset %q: %w", charset, err)
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// DecodeHeaderWord decodes a possibly RFC 2047 encoded-word header value
// (the ENVELOPE SENDER/FROM/REPLY-TO/TO/CC/BCC/SUBJECT fields are wire text,
// not yet decoded). Returns raw unchanged if it isn't encoded-word text or
// decoding fails.
func DecodeHeaderWord(raw string) string {
	decoded, err := envelopeWordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}
