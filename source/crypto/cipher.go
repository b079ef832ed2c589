package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"bedrockd/source/errs"
)

// StreamCipher is the per-connection AES-256-CTR codec of spec 4.4:
// independent 64-bit counters for each direction, and every encrypted
// packet carries an 8-byte trailer computed as the first 8 bytes of
// SHA-256(counter || plaintext || key).
type StreamCipher struct {
	key [32]byte

	mu        sync.Mutex
	sendStream cipher.Stream
	sendCount  uint64

	recvStream cipher.Stream
	recvCount  uint64
}

func NewStreamCipher(key [32]byte, iv [16]byte) (*StreamCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "crypto: aes key setup failed", err)
	}
	return &StreamCipher{
		key:        key,
		sendStream: cipher.NewCTR(block, iv[:]),
		recvStream: cipher.NewCTR(block, iv[:]),
	}, nil
}

// Encrypt appends the checksum trailer and returns ciphertext||trailer.
// The keystream is never reset between calls, so the 64-bit send
// counter advances continuously across the whole connection lifetime.
func (s *StreamCipher) Encrypt(plaintext []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	trailer := checksum(s.sendCount, plaintext, s.key[:])
	withTrailer := append(append([]byte{}, plaintext...), trailer...)

	out := make([]byte, len(withTrailer))
	s.sendStream.XORKeyStream(out, withTrailer)
	s.sendCount++
	return out
}

// Decrypt reverses Encrypt and verifies the trailer, returning the
// plaintext with the trailer stripped.
func (s *StreamCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 8 {
		return nil, errs.New(errs.Malformed, "crypto: ciphertext shorter than checksum trailer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, len(ciphertext))
	s.recvStream.XORKeyStream(out, ciphertext)
	s.recvCount++

	plaintext := out[:len(out)-8]
	trailer := out[len(out)-8:]
	want := checksum(s.recvCount-1, plaintext, s.key[:])
	if !equalTrailer(trailer, want) {
		return nil, errs.New(errs.Violation, "crypto: packet checksum mismatch")
	}
	return plaintext, nil
}

func checksum(counter uint64, plaintext, key []byte) []byte {
	var counterBytes [8]byte
	binary.LittleEndian.PutUint64(counterBytes[:], counter)

	h := sha256.New()
	h.Write(counterBytes[:])
	h.Write(plaintext)
	h.Write(key)
	sum := h.Sum(nil)
	return sum[:8]
}

func equalTrailer(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
