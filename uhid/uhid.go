// Package uhid encodes and decodes the fixed-size event records
// exchanged with the Linux uhid character device.
//
// Every record is one full uhid_event: a 32-bit type tag followed by
// the event union, EventSize bytes in total, exactly as the kernel
// expects on write and produces on read. Numbers are kernel-native
// byte order, which is little-endian on every Linux target this tool
// runs on. Device creation and input use the CREATE2/INPUT2 events;
// the legacy CREATE record carries a userspace pointer and has no
// byte-level representation.
package uhid

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EventType is the 32-bit tag leading every uhid event record.
type EventType uint32

// Event type tags from linux/uhid.h.
const (
	EventDestroy   EventType = 1
	EventStart     EventType = 2
	EventStop      EventType = 3
	EventOpen      EventType = 4
	EventClose     EventType = 5
	EventOutput    EventType = 6
	EventOutputEv  EventType = 7
	EventGetReport EventType = 9
	EventCreate    EventType = 11 // UHID_CREATE2
	EventInput     EventType = 12 // UHID_INPUT2
	EventSetReport EventType = 13
)

// Report types carried in Output events.
const (
	ReportTypeFeature = 0
	ReportTypeOutput  = 1
	ReportTypeInput   = 2
)

// LEDReportID is the report id the descriptor assigns to the LED output
// report; the first payload byte of an LED report must equal it.
const LEDReportID = 0x02

// Wire limits from linux/uhid.h and the HID core.
const (
	NameMax       = 128
	PhysMax       = 64
	UniqMax       = 64
	DataMax       = 4096 // UHID_DATA_MAX
	DescriptorMax = 4096 // HID_MAX_DESCRIPTOR_SIZE
)

// Field offsets within an event record. The create union member is the
// largest, so it fixes the record size.
const (
	offType = 0

	offCreateName    = 4
	offCreatePhys    = offCreateName + NameMax
	offCreateUniq    = offCreatePhys + PhysMax
	offCreateRDSize  = offCreateUniq + UniqMax
	offCreateBus     = offCreateRDSize + 2
	offCreateVendor  = offCreateBus + 2
	offCreateProduct = offCreateVendor + 4
	offCreateVersion = offCreateProduct + 4
	offCreateCountry = offCreateVersion + 4
	offCreateRDData  = offCreateCountry + 4

	offInputSize = 4
	offInputData = offInputSize + 2

	offOutputData  = 4
	offOutputSize  = offOutputData + DataMax
	offOutputRType = offOutputSize + 2

	// EventSize is the size of a complete uhid_event record.
	EventSize = offCreateRDData + DescriptorMax
)

// ErrMalformedEvent reports an inbound record whose byte count does not
// match the fixed event size, or whose payload fields are inconsistent.
var ErrMalformedEvent = errors.New("uhid: malformed event")

func (t EventType) String() string {
	switch t {
	case EventDestroy:
		return "DESTROY"
	case EventStart:
		return "START"
	case EventStop:
		return "STOP"
	case EventOpen:
		return "OPEN"
	case EventClose:
		return "CLOSE"
	case EventOutput:
		return "OUTPUT"
	case EventOutputEv:
		return "OUTPUT_EV"
	case EventGetReport:
		return "GET_REPORT"
	case EventCreate:
		return "CREATE2"
	case EventInput:
		return "INPUT2"
	case EventSetReport:
		return "SET_REPORT"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// CreateRequest describes the device announced to the kernel: identity
// strings, the static report descriptor, and the bus/vendor/product/
// version/country identifiers. It is supplied once, at creation time.
type CreateRequest struct {
	Name       string
	Phys       string
	Uniq       string
	Descriptor []byte
	Bus        uint16
	Vendor     uint32
	Product    uint32
	Version    uint32
	Country    uint32
}

// MarshalBinary encodes the request as a full CREATE2 event record.
func (r *CreateRequest) MarshalBinary() ([]byte, error) {
	if len(r.Name) >= NameMax {
		return nil, fmt.Errorf("uhid: device name %q exceeds %d bytes", r.Name, NameMax-1)
	}
	if len(r.Phys) >= PhysMax || len(r.Uniq) >= UniqMax {
		return nil, errors.New("uhid: phys/uniq string too long")
	}
	if len(r.Descriptor) > DescriptorMax {
		return nil, fmt.Errorf("uhid: report descriptor exceeds %d bytes", DescriptorMax)
	}

	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint32(b[offType:], uint32(EventCreate))
	copy(b[offCreateName:], r.Name)
	copy(b[offCreatePhys:], r.Phys)
	copy(b[offCreateUniq:], r.Uniq)
	binary.LittleEndian.PutUint16(b[offCreateRDSize:], uint16(len(r.Descriptor)))
	binary.LittleEndian.PutUint16(b[offCreateBus:], r.Bus)
	binary.LittleEndian.PutUint32(b[offCreateVendor:], r.Vendor)
	binary.LittleEndian.PutUint32(b[offCreateProduct:], r.Product)
	binary.LittleEndian.PutUint32(b[offCreateVersion:], r.Version)
	binary.LittleEndian.PutUint32(b[offCreateCountry:], r.Country)
	copy(b[offCreateRDData:], r.Descriptor)
	return b, nil
}

// InputRequest carries one input report from the device to the host.
type InputRequest struct {
	Data []byte
}

// MarshalBinary encodes the report as a full INPUT2 event record.
func (r *InputRequest) MarshalBinary() ([]byte, error) {
	if len(r.Data) > DataMax {
		return nil, fmt.Errorf("uhid: input report exceeds %d bytes", DataMax)
	}
	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint32(b[offType:], uint32(EventInput))
	binary.LittleEndian.PutUint16(b[offInputSize:], uint16(len(r.Data)))
	copy(b[offInputData:], r.Data)
	return b, nil
}

// MarshalEmpty encodes an event that carries no payload, such as
// DESTROY.
func MarshalEmpty(t EventType) []byte {
	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint32(b[offType:], uint32(t))
	return b
}

// OutputRequest is the payload of an Output event sent by the host:
// a raw report of Size bytes plus the report type it targets.
type OutputRequest struct {
	Data  []byte
	RType uint8
}

// Event is one decoded inbound record. Output is set only for Output
// events; all other variants carry no payload this device inspects.
// Unrecognized type tags decode successfully so the session can log and
// ignore them.
type Event struct {
	Type   EventType
	Output *OutputRequest
}

// Decode parses a raw inbound record. Records whose length is not
// exactly EventSize, or whose declared payload size is out of range,
// fail with ErrMalformedEvent.
func Decode(raw []byte) (Event, error) {
	if len(raw) != EventSize {
		return Event{}, fmt.Errorf("%w: read %d bytes, want %d", ErrMalformedEvent, len(raw), EventSize)
	}
	ev := Event{Type: EventType(binary.LittleEndian.Uint32(raw[offType:]))}
	if ev.Type == EventOutput {
		size := int(binary.LittleEndian.Uint16(raw[offOutputSize:]))
		if size > DataMax {
			return Event{}, fmt.Errorf("%w: output size %d exceeds %d", ErrMalformedEvent, size, DataMax)
		}
		data := make([]byte, size)
		copy(data, raw[offOutputData:offOutputData+size])
		ev.Output = &OutputRequest{Data: data, RType: raw[offOutputRType]}
	}
	return ev, nil
}

// LEDFlags extracts the LED bitmask from an Output event. It succeeds
// only for the exact shape the descriptor defines: an output report of
// two bytes whose first byte is the LED report id. Any other Output
// event is valid but carries nothing this device interprets.
func (e Event) LEDFlags() (uint8, bool) {
	if e.Type != EventOutput || e.Output == nil {
		return 0, false
	}
	if e.Output.RType != ReportTypeOutput {
		return 0, false
	}
	if len(e.Output.Data) != 2 || e.Output.Data[0] != LEDReportID {
		return 0, false
	}
	return e.Output.Data[1], true
}
