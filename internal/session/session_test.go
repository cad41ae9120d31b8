package session_test

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaiki/uhid-keyboard/hid"
	"github.com/xaiki/uhid-keyboard/internal/log"
	"github.com/xaiki/uhid-keyboard/internal/session"
	"github.com/xaiki/uhid-keyboard/uhid"
)

// fakeChannel is a scripted duplex channel: reads pop queued inbound
// records, writes are captured for inspection.
type fakeChannel struct {
	inbound  [][]byte
	written  [][]byte
	writeErr error
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	if len(f.inbound) == 0 {
		return 0, io.EOF
	}
	rec := f.inbound[0]
	f.inbound = f.inbound[1:]
	return copy(p, rec), nil
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}

func newTestSession(ch *fakeChannel) *session.Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.New(ch, logger, log.NewRaw(nil))
}

// inputReport extracts the 8-byte keyboard report from a captured
// INPUT2 record.
func inputReport(t *testing.T, rec []byte) []byte {
	t.Helper()
	require.Len(t, rec, uhid.EventSize)
	require.Equal(t, uint32(uhid.EventInput), binary.LittleEndian.Uint32(rec[0:4]))
	size := binary.LittleEndian.Uint16(rec[4:6])
	require.Equal(t, uint16(hid.ReportSize), size)
	return rec[6 : 6+size]
}

func reports(t *testing.T, ch *fakeChannel) [][]byte {
	t.Helper()
	out := make([][]byte, len(ch.written))
	for i, rec := range ch.written {
		out[i] = inputReport(t, rec)
	}
	return out
}

func TestProcessKeystrokes(t *testing.T) {

	type testCase struct {
		name            string
		input           []byte
		expectedReports [][]byte
	}

	cases := []testCase{
		{
			name:  "lowercase letter",
			input: []byte("a"),
			expectedReports: [][]byte{
				{0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:  "uppercase letter scopes shift to the pair",
			input: []byte("A"),
			expectedReports: [][]byte{
				{0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:  "shift does not persist to the next keystroke",
			input: []byte("Ab"),
			expectedReports: [][]byte{
				{0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:  "up arrow sequence consumes all three bytes",
			input: []byte{0x1b, '[', 'A'},
			expectedReports: [][]byte{
				{0x00, 0x00, 0x52, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:  "shifted symbol aliases digit without shift",
			input: []byte("!"),
			expectedReports: [][]byte{
				{0x00, 0x00, 0x1e, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:  "standalone escape maps to the Escape key",
			input: []byte{0x1b, 'x'},
			expectedReports: [][]byte{
				{0x00, 0x00, 0x29, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x1b, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
		{
			name:            "unrecognized escape sequence is dropped",
			input:           []byte{0x1b, '[', 'Z'},
			expectedReports: nil,
		},
		{
			name:            "unmapped character produces no reports",
			input:           []byte{0x03},
			expectedReports: nil,
		},
		{
			name:  "arrow resolution never sets shift",
			input: []byte{0x1b, '[', 'D'},
			expectedReports: [][]byte{
				{0x00, 0x00, 0x50, 0x00, 0x00, 0x00, 0x00, 0x00},
				{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{}
			sess := newTestSession(ch)

			require.NoError(t, sess.ProcessKeystrokes(tc.input))

			got := reports(t, ch)
			if tc.expectedReports == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tc.expectedReports, got)
			}
		})
	}
}

func TestProcessKeystrokesEscapeAcrossBatches(t *testing.T) {

	ch := &fakeChannel{}
	sess := newTestSession(ch)

	require.NoError(t, sess.ProcessKeystrokes([]byte{0x1b, '['}))
	assert.Empty(t, ch.written, "no report while the sequence is pending")

	require.NoError(t, sess.ProcessKeystrokes([]byte{'B'}))

	got := reports(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0x51, 0x00, 0x00, 0x00, 0x00, 0x00}, got[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, got[1])
}

func TestProcessKeystrokesTrailingEscapeIsStandalone(t *testing.T) {

	// An ESC at the end of a batch has no '[' to pair with and is
	// delivered as the Escape key immediately.
	ch := &fakeChannel{}
	sess := newTestSession(ch)

	require.NoError(t, sess.ProcessKeystrokes([]byte{0x1b}))

	got := reports(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0x29, 0x00, 0x00, 0x00, 0x00, 0x00}, got[0])
}

func TestProcessKeystrokesWriteFailure(t *testing.T) {

	ch := &fakeChannel{writeErr: io.ErrClosedPipe}
	sess := newTestSession(ch)

	// Channel write failures are the one error class that propagates;
	// the caller tears the session down.
	err := sess.ProcessKeystrokes([]byte("a"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestHandleDeviceEventMalformed(t *testing.T) {

	ch := &fakeChannel{inbound: [][]byte{make([]byte, 16)}}
	sess := newTestSession(ch)

	require.NoError(t, sess.HandleDeviceEvent(), "malformed records must not terminate the session")

	// Key state is untouched: the next keystroke produces a clean pair.
	require.NoError(t, sess.ProcessKeystrokes([]byte("a")))
	got := reports(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}, got[0])
}

func TestHandleDeviceEventLifecycle(t *testing.T) {

	ch := &fakeChannel{inbound: [][]byte{
		uhid.MarshalEmpty(uhid.EventStart),
		uhid.MarshalEmpty(uhid.EventOpen),
		ledOutputEvent(0x02),
		uhid.MarshalEmpty(uhid.EventClose),
	}}
	sess := newTestSession(ch)

	for i := 0; i < 4; i++ {
		require.NoError(t, sess.HandleDeviceEvent())
	}
	assert.ErrorIs(t, sess.HandleDeviceEvent(), session.ErrChannelClosed)
}

func TestCreateAndDestroyDevice(t *testing.T) {

	ch := &fakeChannel{}
	sess := newTestSession(ch)

	require.NoError(t, sess.CreateDevice(&uhid.CreateRequest{
		Name:       "uhidkbd",
		Descriptor: hid.ReportDescriptor,
		Bus:        0x03,
		Vendor:     0x15d9,
		Product:    0x0a37,
	}))
	require.NoError(t, sess.DestroyDevice())

	require.Len(t, ch.written, 2)
	assert.Equal(t, uint32(uhid.EventCreate), binary.LittleEndian.Uint32(ch.written[0][0:4]))
	assert.Equal(t, uint32(uhid.EventDestroy), binary.LittleEndian.Uint32(ch.written[1][0:4]))
}

func ledOutputEvent(flags uint8) []byte {
	raw := make([]byte, uhid.EventSize)
	binary.LittleEndian.PutUint32(raw, uint32(uhid.EventOutput))
	raw[4] = uhid.LEDReportID
	raw[5] = flags
	binary.LittleEndian.PutUint16(raw[4100:], 2)
	raw[4102] = uhid.ReportTypeOutput
	return raw
}
