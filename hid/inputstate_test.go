package hid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xaiki/uhid-keyboard/hid"
)

func TestInputStateReports(t *testing.T) {

	type testCase struct {
		name           string
		setup          func(st *hid.InputState)
		expectedReport []byte
	}

	cases := []testCase{
		{
			name:           "empty",
			setup:          func(st *hid.InputState) {},
			expectedReport: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "single key",
			setup: func(st *hid.InputState) {
				st.Press(hid.KeyA)
			},
			expectedReport: []byte{0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "two keys with shift",
			setup: func(st *hid.InputState) {
				st.Modifiers |= hid.ModLeftShift
				st.Press(hid.KeyA)
				st.Press(hid.KeyB)
			},
			expectedReport: []byte{0x02, 0x00, 0x04, 0x05, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "release closes gap",
			setup: func(st *hid.InputState) {
				st.Press(hid.KeyA)
				st.Press(hid.KeyB)
				st.Press(hid.KeyC)
				st.Release(hid.KeyB)
			},
			expectedReport: []byte{0x00, 0x00, 0x04, 0x06, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var st hid.InputState
			tc.setup(&st)
			assert.Equal(t, tc.expectedReport, st.BuildReport())
		})
	}
}

func TestInputStatePressReleasePair(t *testing.T) {

	var st hid.InputState
	st.Press(hid.KeyA)
	st.Press(hid.KeyB)
	before := st.BuildReport()

	st.Press(hid.KeyC)
	st.Release(hid.KeyC)

	assert.Equal(t, before, st.BuildReport(), "press then release must restore the prior report")
}

func TestInputStateDuplicatePress(t *testing.T) {

	var st hid.InputState
	st.Press(hid.KeyA)
	st.Press(hid.KeyA)

	assert.Equal(t, []uint8{hid.KeyA}, st.Pressed())
	st.Release(hid.KeyA)
	assert.Empty(t, st.Pressed())
}

func TestInputStateSeventhKeyDropped(t *testing.T) {

	var st hid.InputState
	keys := []uint8{hid.KeyA, hid.KeyB, hid.KeyC, hid.KeyD, hid.KeyE, hid.KeyF}
	for _, k := range keys {
		st.Press(k)
	}
	before := st.BuildReport()

	st.Press(hid.KeyG)

	assert.Equal(t, keys, st.Pressed())
	assert.Equal(t, before, st.BuildReport(), "seventh key must be a no-op")
}

func TestInputStateReleaseAbsent(t *testing.T) {

	var st hid.InputState
	st.Press(hid.KeyA)
	before := st.BuildReport()

	st.Release(hid.KeyZ)

	assert.Equal(t, before, st.BuildReport())
}

func TestInputStateClear(t *testing.T) {

	var st hid.InputState
	st.Modifiers = hid.ModLeftShift | hid.ModRightAlt
	st.Press(hid.KeyA)
	st.Press(hid.KeyB)

	st.Clear()

	assert.Equal(t, uint8(0), st.Modifiers)
	assert.Empty(t, st.Pressed())
	assert.Equal(t, make([]byte, hid.ReportSize), st.BuildReport())
}
