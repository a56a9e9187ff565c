package imapfolder

import "strings"

// Modified UTF-7 (RFC 3501 §5.1.3) mailbox-name encoding: like UTF-7 but
// using "&" instead of "+" as the shift character, "," instead of "/" in the
// modified base64 alphabet, and no implicit shift back to ASCII at end of
// string (every shift must be explicitly closed with "-").
//
// [EXPANSION — supplements the distilled spec, grounded in
// spruce-imap-utils.c's `imap_utf7_encode`/`imap_utf8_utf7` shift-sequence
// codec.]

const utf7Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

var utf7Rank [256]byte

func init() {
	for i := range utf7Rank {
		utf7Rank[i] = 0xff
	}
	for i, c := range []byte(utf7Alphabet) {
		utf7Rank[c] = byte(i)
	}
}

// EncodeUTF7 converts a UTF-8 mailbox name into its modified UTF-7
// server-visible form.
func EncodeUTF7(in string) string {
	var out strings.Builder
	shifted := false
	var bitBuf uint32
	var bitCount int

	closeShift := func() {
		if bitCount > 0 {
			x := (bitBuf << uint(6-bitCount)) & 0x3f
			out.WriteByte(utf7Alphabet[x])
			bitCount = 0
			bitBuf = 0
		}
		out.WriteByte('-')
		shifted = false
	}

	for _, r := range in {
		if r >= 0x20 && r <= 0x7e {
			if shifted {
				closeShift()
			}
			if r == '&' {
				out.WriteString("&-")
			} else {
				out.WriteRune(r)
			}
			continue
		}
		if !shifted {
			out.WriteByte('&')
			shifted = true
		}
		bitBuf = (bitBuf << 16) | uint32(r)
		bitCount += 16
		for bitCount >= 6 {
			bitCount -= 6
			x := (bitBuf >> uint(bitCount)) & 0x3f
			out.WriteByte(utf7Alphabet[x])
		}
	}
	if shifted {
		closeShift()
	}
	return out.String()
}

// DecodeUTF7 converts a server-visible modified UTF-7 mailbox name back to
// UTF-8. On malformed input it returns the original string unchanged (the
// same fallback spruce-imap-utils.c uses).
func DecodeUTF7(in string) string {
	var out strings.Builder
	shifted := false
	var bitBuf uint32
	var bitCount int

	bytes := []byte(in)
	for i := 0; i < len(bytes); i++ {
		c := bytes[i]
		if shifted {
			if c == '-' {
				shifted = false
				bitBuf, bitCount = 0, 0
				continue
			}
			rank := utf7Rank[c]
			if rank == 0xff {
				return in
			}
			bitBuf = (bitBuf << 6) | uint32(rank)
			bitCount += 6
			if bitCount >= 16 {
				bitCount -= 16
				u := (bitBuf >> uint(bitCount)) & 0xffff
				out.WriteRune(rune(u))
			}
			continue
		}
		if c == '&' {
			if i+1 < len(bytes) && bytes[i+1] == '-' {
				out.WriteByte('&')
				i++
			} else {
				shifted = true
				bitBuf, bitCount = 0, 0
			}
			continue
		}
		out.WriteByte(c)
	}
	if shifted {
		return in
	}
	return out.String()
}
