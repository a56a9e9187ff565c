package imapengine

// NextToken and UngetToken expose the engine's token stream to an
// UntaggedHandler so it can parse a response body the engine itself has no
// fixed grammar for (FETCH's attribute list, principally). A handler called
// from handleUntagged1 owns the stream cursor until it returns — it must
// consume through the end of the response line itself; DrainToEOL does that
// for whatever the handler chooses to ignore.
func (e *Engine) NextToken() (Token, error) { return e.stream.NextToken() }

func (e *Engine) UngetToken(t Token) error { return e.stream.UngetToken(t) }

// ParseFlagList reads a parenthesised flag list into a bitmask, starting at
// the opening '('.
func (e *Engine) ParseFlagList() (uint32, error) { return e.parseFlagList() }

// DrainToEOL consumes the remainder of the current response line.
func (e *Engine) DrainToEOL() { e.drainToEOL() }

// ReadLiteral reads the n-byte payload following a just-lexed Literal token
// and returns it as a string. It always issues at least one Stream.Read call
// (even for n == 0) so the stream's mode flips back from literal mode to
// token mode before the caller resumes calling NextToken.
func (e *Engine) ReadLiteral(n uint64) (string, error) {
	buf := make([]byte, n)
	var got uint64
	for {
		r, err := e.stream.Read(buf[got:])
		if err != nil {
			return "", err
		}
		got += uint64(r)
		if got >= n || r == 0 {
			break
		}
	}
	return string(buf[:got]), nil
}

// DrainLiteral reads and discards the n-byte payload following a just-lexed
// Literal token, without allocating a buffer the size of the literal.
func (e *Engine) DrainLiteral(n uint64) error {
	var buf [4096]byte
	var got uint64
	for {
		want := n - got
		if want > uint64(len(buf)) {
			want = uint64(len(buf))
		}
		r, err := e.stream.Read(buf[:want])
		if err != nil {
			return err
		}
		got += uint64(r)
		if got >= n || r == 0 {
			break
		}
	}
	return nil
}
