package hid

// MaxPressedKeys is the boot-protocol rollover limit: one report slot
// per simultaneously held non-modifier key.
const MaxPressedKeys = 6

// ReportSize is the encoded size of a boot keyboard input report:
// modifiers, reserved byte, six key slots.
const ReportSize = 8

// InputState tracks the keyboard state used to build input reports: the
// modifier bitfield plus an ordered set of currently pressed keys.
// It is single-owner state; the session driver mutates it from one
// goroutine only.
type InputState struct {
	Modifiers uint8 // ModLeftCtrl .. ModRightGUI
	keys      [MaxPressedKeys]uint8
	pressed   int
}

// Press adds a key to the pressed set. Duplicate codes are ignored, and
// a seventh simultaneous key is silently dropped rather than reported
// as a rollover error.
func (st *InputState) Press(code uint8) {
	if code == 0 || st.pressed >= MaxPressedKeys {
		return
	}
	for i := 0; i < st.pressed; i++ {
		if st.keys[i] == code {
			return
		}
	}
	st.keys[st.pressed] = code
	st.pressed++
}

// Release removes a key from the pressed set, shifting later entries
// left and zeroing the vacated slot so no stale code leaks into the
// next report. Releasing an absent code is a no-op.
func (st *InputState) Release(code uint8) {
	for i := 0; i < st.pressed; i++ {
		if st.keys[i] != code {
			continue
		}
		copy(st.keys[i:], st.keys[i+1:st.pressed])
		st.pressed--
		st.keys[st.pressed] = 0
		return
	}
}

// Clear resets the pressed set and all modifier flags.
func (st *InputState) Clear() {
	st.keys = [MaxPressedKeys]uint8{}
	st.pressed = 0
	st.Modifiers = 0
}

// Pressed returns a copy of the currently pressed usage codes in press
// order.
func (st *InputState) Pressed() []uint8 {
	out := make([]uint8, st.pressed)
	copy(out, st.keys[:st.pressed])
	return out
}

// BuildReport encodes the state into the 8-byte boot keyboard report.
//
// Report layout:
//
//	Byte 0: Modifiers (8 bits)
//	Byte 1: Reserved (0x00)
//	Bytes 2-7: Pressed usage codes, zero-padded
func (st *InputState) BuildReport() []byte {
	b := make([]byte, ReportSize)
	b[0] = st.Modifiers
	b[1] = 0x00 // Reserved
	copy(b[2:], st.keys[:])
	return b
}
