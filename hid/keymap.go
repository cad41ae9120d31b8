// Package hid implements the keyboard side of the HID boot protocol:
// the US-ASCII to usage-code table, the pressed-key tracker that builds
// 8-byte input reports, and the ANSI escape-sequence parser for arrow
// keys.
package hid

// charToKey maps US-ASCII characters to their HID usage codes. The
// shifted number-row symbols alias the digit codes and Shift is never
// set for them. Characters without an entry have no mapping and are
// dropped by the caller.
var charToKey = map[byte]uint8{
	// Lowercase letters
	'a': KeyA, 'b': KeyB, 'c': KeyC, 'd': KeyD, 'e': KeyE, 'f': KeyF, 'g': KeyG,
	'h': KeyH, 'i': KeyI, 'j': KeyJ, 'k': KeyK, 'l': KeyL, 'm': KeyM, 'n': KeyN,
	'o': KeyO, 'p': KeyP, 'q': KeyQ, 'r': KeyR, 's': KeyS, 't': KeyT, 'u': KeyU,
	'v': KeyV, 'w': KeyW, 'x': KeyX, 'y': KeyY, 'z': KeyZ,

	// Uppercase letters (same keys, need shift)
	'A': KeyA, 'B': KeyB, 'C': KeyC, 'D': KeyD, 'E': KeyE, 'F': KeyF, 'G': KeyG,
	'H': KeyH, 'I': KeyI, 'J': KeyJ, 'K': KeyK, 'L': KeyL, 'M': KeyM, 'N': KeyN,
	'O': KeyO, 'P': KeyP, 'Q': KeyQ, 'R': KeyR, 'S': KeyS, 'T': KeyT, 'U': KeyU,
	'V': KeyV, 'W': KeyW, 'X': KeyX, 'Y': KeyY, 'Z': KeyZ,

	// Numbers (top row)
	'1': Key1, '2': Key2, '3': Key3, '4': Key4, '5': Key5,
	'6': Key6, '7': Key7, '8': Key8, '9': Key9, '0': Key0,

	// Shifted number row symbols (alias the digit codes, no shift)
	'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
	'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,

	// Symbols
	'-':  KeyMinus,
	'=':  KeyEqual,
	'[':  KeyLeftBrace,
	']':  KeyRightBrace,
	'\\': KeyBackslash,
	';':  KeySemicolon,
	'\'': KeyApostrophe,
	'`':  KeyGrave,
	',':  KeyComma,
	'.':  KeyPeriod,
	'/':  KeySlash,

	// Whitespace and control
	' ':    KeySpace,
	'\n':   KeyEnter,
	'\r':   KeyEnter,
	'\b':   KeyBackspace,
	'\t':   KeyTab,
	'\x1b': KeyEscape,
}

// Lookup maps a US-ASCII character to its HID usage code and reports
// whether the keystroke needs the Shift modifier. Unmapped characters
// return code 0, which callers treat as a non-event. Only uppercase
// letters request Shift; the shifted symbols alias unshifted codes (see
// charToKey).
func Lookup(c byte) (code uint8, needsShift bool) {
	code = charToKey[c]
	if code == 0 {
		return 0, false
	}
	return code, c >= 'A' && c <= 'Z'
}
