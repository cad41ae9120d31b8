package uhid_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaiki/uhid-keyboard/uhid"
)

// Offsets within a record, per linux/uhid.h. Kept literal here so the
// tests pin the ABI independently of the encoder.
const (
	offName    = 4
	offPhys    = 132
	offUniq    = 196
	offRDSize  = 260
	offBus     = 262
	offVendor  = 264
	offProduct = 268
	offVersion = 272
	offCountry = 276
	offRDData  = 280

	offInputSize = 4
	offInputData = 6

	offOutputData  = 4
	offOutputSize  = 4100
	offOutputRType = 4102
)

func TestEventSize(t *testing.T) {
	// 4-byte tag + create2 union member (128+64+64+2+2+4+4+4+4+4096).
	assert.Equal(t, 4376, uhid.EventSize)
}

func TestCreateRequestMarshal(t *testing.T) {

	req := &uhid.CreateRequest{
		Name:       "uhidkbd",
		Descriptor: []byte{0x05, 0x01, 0x09, 0x06},
		Bus:        0x03,
		Vendor:     0x15d9,
		Product:    0x0a37,
		Version:    7,
		Country:    33,
	}

	b, err := req.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, uhid.EventSize)

	assert.Equal(t, uint32(uhid.EventCreate), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, "uhidkbd", string(b[offName:offName+7]))
	assert.Equal(t, byte(0), b[offName+7], "name must be NUL terminated")
	assert.Equal(t, make([]byte, 64), b[offPhys:offUniq], "phys defaults to zero")
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(b[offRDSize:]))
	assert.Equal(t, uint16(0x03), binary.LittleEndian.Uint16(b[offBus:]))
	assert.Equal(t, uint32(0x15d9), binary.LittleEndian.Uint32(b[offVendor:]))
	assert.Equal(t, uint32(0x0a37), binary.LittleEndian.Uint32(b[offProduct:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[offVersion:]))
	assert.Equal(t, uint32(33), binary.LittleEndian.Uint32(b[offCountry:]))
	assert.Equal(t, req.Descriptor, b[offRDData:offRDData+4])
}

func TestCreateRequestMarshalErrors(t *testing.T) {

	tooLongName := &uhid.CreateRequest{Name: strings.Repeat("x", uhid.NameMax)}
	_, err := tooLongName.MarshalBinary()
	assert.Error(t, err)

	tooLongDesc := &uhid.CreateRequest{Name: "kbd", Descriptor: make([]byte, uhid.DescriptorMax+1)}
	_, err = tooLongDesc.MarshalBinary()
	assert.Error(t, err)
}

func TestInputRequestMarshal(t *testing.T) {

	report := []byte{0x02, 0x00, 0x04, 0x05, 0x00, 0x00, 0x00, 0x00}
	req := &uhid.InputRequest{Data: report}

	b, err := req.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, uhid.EventSize)

	assert.Equal(t, uint32(uhid.EventInput), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint16(8), binary.LittleEndian.Uint16(b[offInputSize:]))
	assert.Equal(t, report, b[offInputData:offInputData+8])
}

func TestMarshalEmpty(t *testing.T) {

	b := uhid.MarshalEmpty(uhid.EventDestroy)
	require.Len(t, b, uhid.EventSize)
	assert.Equal(t, uint32(uhid.EventDestroy), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, make([]byte, uhid.EventSize-4), b[4:], "payload must be zero")
}

func TestDecodeWrongSize(t *testing.T) {

	for _, n := range []int{0, 4, 8, uhid.EventSize - 1, uhid.EventSize + 1} {
		_, err := uhid.Decode(make([]byte, n))
		assert.ErrorIs(t, err, uhid.ErrMalformedEvent, "size %d", n)
	}
}

func TestDecodeLifecycleEvents(t *testing.T) {

	for _, typ := range []uhid.EventType{uhid.EventStart, uhid.EventStop, uhid.EventOpen, uhid.EventClose, uhid.EventOutputEv} {
		ev, err := uhid.Decode(uhid.MarshalEmpty(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, ev.Type)
		assert.Nil(t, ev.Output)
	}
}

func TestDecodeUnknownType(t *testing.T) {

	raw := make([]byte, uhid.EventSize)
	binary.LittleEndian.PutUint32(raw, 0xdead)

	ev, err := uhid.Decode(raw)
	require.NoError(t, err, "unknown tags must not fail the decoder")
	assert.Equal(t, "UNKNOWN(57005)", ev.Type.String())
}

func makeOutputEvent(rtype uint8, payload []byte) []byte {
	raw := make([]byte, uhid.EventSize)
	binary.LittleEndian.PutUint32(raw, uint32(uhid.EventOutput))
	copy(raw[offOutputData:], payload)
	binary.LittleEndian.PutUint16(raw[offOutputSize:], uint16(len(payload)))
	raw[offOutputRType] = rtype
	return raw
}

func TestDecodeOutputLEDReport(t *testing.T) {

	type testCase struct {
		name          string
		rtype         uint8
		payload       []byte
		expectedFlags uint8
		expectedOK    bool
	}

	cases := []testCase{
		{
			name:          "led report",
			rtype:         uhid.ReportTypeOutput,
			payload:       []byte{uhid.LEDReportID, 0x03},
			expectedFlags: 0x03,
			expectedOK:    true,
		},
		{
			name:       "wrong report type",
			rtype:      uhid.ReportTypeFeature,
			payload:    []byte{uhid.LEDReportID, 0x03},
			expectedOK: false,
		},
		{
			name:       "wrong payload size",
			rtype:      uhid.ReportTypeOutput,
			payload:    []byte{uhid.LEDReportID, 0x03, 0x00},
			expectedOK: false,
		},
		{
			name:       "wrong report id",
			rtype:      uhid.ReportTypeOutput,
			payload:    []byte{0x01, 0x03},
			expectedOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := uhid.Decode(makeOutputEvent(tc.rtype, tc.payload))
			require.NoError(t, err)
			require.NotNil(t, ev.Output)
			assert.Equal(t, tc.payload, ev.Output.Data)
			assert.Equal(t, tc.rtype, ev.Output.RType)

			flags, ok := ev.LEDFlags()
			assert.Equal(t, tc.expectedOK, ok)
			assert.Equal(t, tc.expectedFlags, flags)
		})
	}
}

func TestEventTypeString(t *testing.T) {

	assert.Equal(t, "CREATE2", uhid.EventCreate.String())
	assert.Equal(t, "INPUT2", uhid.EventInput.String())
	assert.Equal(t, "OUTPUT", uhid.EventOutput.String())
	assert.Equal(t, "DESTROY", uhid.EventDestroy.String())
}
