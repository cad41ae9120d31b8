// Package session drives the virtual keyboard: it turns batches of raw
// terminal bytes into press/release input reports and services the
// protocol events the kernel sends back.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xaiki/uhid-keyboard/hid"
	"github.com/xaiki/uhid-keyboard/internal/log"
	"github.com/xaiki/uhid-keyboard/uhid"
)

// ErrChannelClosed reports end-of-stream on the device channel; the
// session loop terminates and tears the device down.
var ErrChannelClosed = errors.New("session: channel closed")

const asciiEsc = 0x1b

// Session owns the per-device keystroke state: the pressed-key tracker
// and the escape accumulator. All methods run on the one goroutine that
// services the readiness loop; nothing here needs locking.
type Session struct {
	conn      io.ReadWriter
	keys      hid.InputState
	esc       hid.EscapeParser
	logger    *slog.Logger
	rawLogger log.RawLogger
}

// New returns a Session speaking the uhid protocol over conn.
func New(conn io.ReadWriter, logger *slog.Logger, rawLogger log.RawLogger) *Session {
	return &Session{conn: conn, logger: logger, rawLogger: rawLogger}
}

// CreateDevice announces the device to the kernel.
func (s *Session) CreateDevice(req *uhid.CreateRequest) error {
	b, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	s.logger.Info("creating uhid device", "name", req.Name,
		"vendor", fmt.Sprintf("0x%04x", req.Vendor), "product", fmt.Sprintf("0x%04x", req.Product))
	return s.writeRecord(b)
}

// DestroyDevice removes the device. Called best-effort on the way out.
func (s *Session) DestroyDevice() error {
	s.logger.Info("destroying uhid device")
	return s.writeRecord(uhid.MarshalEmpty(uhid.EventDestroy))
}

// ProcessKeystrokes runs the press/release state machine over one batch
// of input bytes. Each mapped byte produces exactly one key-down report
// followed by one key-up report, so the host never observes a key held
// across reads. Parsing anomalies are logged and recovered locally;
// only channel write failures propagate.
func (s *Session) ProcessKeystrokes(buf []byte) error {
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		var code uint8
		var needsShift bool

		switch {
		case s.esc.Pending():
			c, res := s.esc.Feed(b)
			if res == hid.EscapePending {
				continue
			}
			if res == hid.EscapeDiscarded {
				s.logger.Debug("discarded escape sequence", "byte", fmt.Sprintf("0x%02x", b))
				continue
			}
			// Arrow keys resolve directly and never involve Shift.
			code = c
		case b == asciiEsc && i+1 < len(buf) && buf[i+1] == '[':
			s.esc.Begin()
			continue
		default:
			code, needsShift = hid.Lookup(b)
		}

		if code == 0 {
			s.logger.Debug("unrecognized character", "byte", fmt.Sprintf("0x%02x", b))
			continue
		}

		s.logger.Debug("processing keystroke", "byte", fmt.Sprintf("0x%02x", b),
			"key", hid.KeyName[code], "code", fmt.Sprintf("0x%02x", code))

		// Shift is scoped to the single keystroke: set before the press
		// report, cleared before the release report goes out.
		if needsShift {
			s.keys.Modifiers |= hid.ModLeftShift
		}
		s.keys.Press(code)
		if err := s.sendReport(); err != nil {
			return err
		}

		s.keys.Release(code)
		if needsShift {
			s.keys.Modifiers &^= hid.ModLeftShift
		}
		if err := s.sendReport(); err != nil {
			return err
		}
	}
	return nil
}

// HandleDeviceEvent reads and dispatches one inbound record from the
// kernel. Malformed records are logged and skipped; read failures and
// end-of-stream terminate the session.
func (s *Session) HandleDeviceEvent() error {
	buf := make([]byte, uhid.EventSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrChannelClosed
		}
		return fmt.Errorf("read uhid channel: %w", err)
	}
	if n == 0 {
		return ErrChannelClosed
	}
	s.rawLogger.Log(true, buf[:n])

	ev, err := uhid.Decode(buf[:n])
	if err != nil {
		s.logger.Warn("dropping malformed device event", "error", err)
		return nil
	}

	switch ev.Type {
	case uhid.EventStart, uhid.EventStop, uhid.EventOpen, uhid.EventClose:
		s.logger.Info("device event", "type", ev.Type.String())
	case uhid.EventOutput:
		if flags, ok := ev.LEDFlags(); ok {
			s.logger.Info("LED output report", "flags", fmt.Sprintf("0x%02x", flags),
				"numlock", flags&hid.LEDNumLock != 0,
				"capslock", flags&hid.LEDCapsLock != 0,
				"scrolllock", flags&hid.LEDScrollLock != 0)
		} else {
			s.logger.Debug("output report", "rtype", ev.Output.RType, "size", len(ev.Output.Data))
		}
	case uhid.EventOutputEv:
		s.logger.Debug("device event", "type", ev.Type.String())
	default:
		s.logger.Warn("unrecognized device event", "type", ev.Type.String())
	}
	return nil
}

func (s *Session) sendReport() error {
	report := s.keys.BuildReport()
	s.logger.Debug("sending input report",
		"modifiers", fmt.Sprintf("0x%02x", s.keys.Modifiers),
		"keys", keyNames(s.keys.Pressed()))

	req := uhid.InputRequest{Data: report}
	b, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	return s.writeRecord(b)
}

func (s *Session) writeRecord(b []byte) error {
	s.rawLogger.Log(false, b)
	n, err := s.conn.Write(b)
	if err != nil {
		return fmt.Errorf("write uhid channel: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("short write to uhid channel: %d != %d", n, len(b))
	}
	return nil
}

func keyNames(codes []uint8) []string {
	names := make([]string, len(codes))
	for i, c := range codes {
		if n, ok := hid.KeyName[c]; ok {
			names[i] = n
		} else {
			names[i] = fmt.Sprintf("0x%02x", c)
		}
	}
	return names
}
