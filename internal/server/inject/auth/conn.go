package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Direction bytes lead every nonce so the two directions of a session
// never reuse a (key, nonce) pair even though they share the session
// key and both counters start at zero.
const (
	dirClient = 0x01
	dirServer = 0x02
)

// Conn seals traffic over an underlying net.Conn with
// ChaCha20-Poly1305. Each packet is length-prefixed: a 4-byte length,
// a 12-byte nonce (direction byte, then a counter) and the ciphertext.
type Conn struct {
	net.Conn
	aead    cipher.AEAD
	sendDir byte
	recvDir byte
	sendCtr uint64
	recvBuf bytes.Buffer
	mu      sync.Mutex
}

// Injection payloads are keystrokes; anything larger than this is not a
// legitimate client.
const maxPacketSize = 64 * 1024

// WrapConn wraps conn with a session-keyed AEAD. isClient selects the
// nonce direction byte and must differ between the two endpoints.
func WrapConn(conn net.Conn, sessionKey []byte, isClient bool) (net.Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	c := &Conn{Conn: conn, aead: aead, sendDir: dirServer, recvDir: dirClient}
	if isClient {
		c.sendDir, c.recvDir = dirClient, dirServer
	}
	return c, nil
}

func (s *Conn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := make([]byte, chacha20poly1305.NonceSize)
	nonce[0] = s.sendDir
	binary.BigEndian.PutUint64(nonce[4:], s.sendCtr)
	s.sendCtr++

	ct := s.aead.Seal(nil, nonce, p, nil)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(nonce)+len(ct)))

	if i, err := s.Conn.Write(hdr[:]); err != nil {
		return i, err
	}
	if i, err := s.Conn.Write(nonce); err != nil {
		return i, err
	}
	if i, err := s.Conn.Write(ct); err != nil {
		return i, err
	}
	return len(p), nil
}

func (s *Conn) Read(p []byte) (int, error) {
	if s.recvBuf.Len() == 0 {
		var hdr [4]byte
		if i, err := io.ReadFull(s.Conn, hdr[:]); err != nil {
			return i, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length < chacha20poly1305.NonceSize || length > maxPacketSize {
			return 0, io.ErrUnexpectedEOF
		}

		pkt := make([]byte, length)
		if i, err := io.ReadFull(s.Conn, pkt); err != nil {
			return i, err
		}
		if pkt[0] != s.recvDir {
			return 0, errors.New("auth: packet nonce has the wrong direction")
		}

		pt, err := s.aead.Open(nil, pkt[:chacha20poly1305.NonceSize], pkt[chacha20poly1305.NonceSize:], nil)
		if err != nil {
			return 0, err
		}
		s.recvBuf.Write(pt)
	}
	return s.recvBuf.Read(p)
}
