package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const (
	// HandshakeMagic leads every client hello.
	HandshakeMagic = "uKB1\x00"
	NonceSize      = 32
	authContext    = "uhidkbd-auth-v1"
)

// ErrUnauthorized reports a client that failed the HMAC proof.
var ErrUnauthorized = errors.New("auth: invalid key")

// Handshake performs the nonce exchange on one side of a connection.
//
// The client sends magic + nonce + HMAC(key, context||nonce); the
// server verifies the proof, replies "OK\0" + its own nonce, and both
// sides derive the session key from the two nonces via
// DeriveSessionKey.
func Handshake(rw io.ReadWriter, key []byte, isClient bool) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, errors.New("auth: missing key")
	}
	if isClient {
		return clientHandshake(rw, key)
	}
	return serverHandshake(rw, key)
}

func clientHandshake(rw io.ReadWriter, key []byte) (clientNonce, serverNonce []byte, err error) {
	clientNonce = make([]byte, NonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, nil, fmt.Errorf("generate client nonce: %w", err)
	}

	msg := append([]byte(HandshakeMagic), clientNonce...)
	msg = append(msg, proof(key, clientNonce)...)
	if _, err := rw.Write(msg); err != nil {
		return nil, nil, fmt.Errorf("write handshake: %w", err)
	}

	resp := make([]byte, 3)
	if _, err := io.ReadFull(rw, resp); err != nil {
		return nil, nil, fmt.Errorf("read handshake response: %w", err)
	}
	if string(resp) != "OK\x00" {
		return nil, nil, ErrUnauthorized
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rw, serverNonce); err != nil {
		return nil, nil, fmt.Errorf("read server nonce: %w", err)
	}
	return clientNonce, serverNonce, nil
}

func serverHandshake(rw io.ReadWriter, key []byte) (clientNonce, serverNonce []byte, err error) {
	magic := make([]byte, len(HandshakeMagic))
	if _, err := io.ReadFull(rw, magic); err != nil {
		return nil, nil, fmt.Errorf("read handshake magic: %w", err)
	}
	if string(magic) != HandshakeMagic {
		return nil, nil, errors.New("auth: bad handshake magic")
	}

	clientNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rw, clientNonce); err != nil {
		return nil, nil, fmt.Errorf("read client nonce: %w", err)
	}

	clientAuth := make([]byte, sha256.Size)
	if _, err := io.ReadFull(rw, clientAuth); err != nil {
		return nil, nil, fmt.Errorf("read client auth: %w", err)
	}
	if !hmac.Equal(clientAuth, proof(key, clientNonce)) {
		return nil, nil, ErrUnauthorized
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, nil, fmt.Errorf("generate server nonce: %w", err)
	}
	if _, err := rw.Write(append([]byte("OK\x00"), serverNonce...)); err != nil {
		return nil, nil, fmt.Errorf("write handshake response: %w", err)
	}
	return clientNonce, serverNonce, nil
}

func proof(key, nonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(nonce)
	return mac.Sum(nil)
}
