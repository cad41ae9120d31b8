package hid

// escBufCap bounds the escape accumulator; an append past this resets
// the parser.
const escBufCap = 8

const asciiEsc = 0x1b

// EscapeResult reports the outcome of feeding one byte to an
// EscapeParser.
type EscapeResult int

const (
	// EscapePending means the sequence is still being accumulated.
	EscapePending EscapeResult = iota
	// EscapeResolved means the sequence completed as an arrow key; the
	// returned usage code is valid and the parser is idle again.
	EscapeResolved
	// EscapeDiscarded means the sequence was malformed or overflowed;
	// the buffer was dropped and the parser is idle again.
	EscapeDiscarded
)

// EscapeParser accumulates the bytes of a candidate ANSI escape
// sequence and resolves the 3-byte arrow sequences ESC [ A/B/C/D to
// their usage codes. Anything else of the ESC [ x shape is discarded at
// the third byte; longer sequences (function keys and the like) are
// deliberately not attempted. Accumulation survives across read batches
// once begun.
type EscapeParser struct {
	buf []byte
}

// Pending reports whether a sequence is being accumulated.
func (p *EscapeParser) Pending() bool {
	return len(p.buf) > 0
}

// Begin starts accumulating a sequence. The caller invokes it on an ESC
// byte only after confirming a '[' follows within the same batch; a
// standalone ESC is mapped as the Escape key instead and never enters
// the parser.
func (p *EscapeParser) Begin() {
	p.buf = append(p.buf[:0], asciiEsc)
}

// Feed appends the next byte to a pending sequence. On resolution the
// arrow usage code is returned and the buffer cleared; malformed or
// overflowing sequences are dropped and reported as discarded.
func (p *EscapeParser) Feed(b byte) (uint8, EscapeResult) {
	if len(p.buf) >= escBufCap {
		p.buf = p.buf[:0]
		return 0, EscapeDiscarded
	}
	p.buf = append(p.buf, b)

	switch len(p.buf) {
	case 2:
		if b != '[' {
			p.buf = p.buf[:0]
			return 0, EscapeDiscarded
		}
		return 0, EscapePending
	case 3:
		p.buf = p.buf[:0]
		switch b {
		case 'A':
			return KeyUp, EscapeResolved
		case 'B':
			return KeyDown, EscapeResolved
		case 'C':
			return KeyRight, EscapeResolved
		case 'D':
			return KeyLeft, EscapeResolved
		}
		return 0, EscapeDiscarded
	}
	return 0, EscapePending
}
