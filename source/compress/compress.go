// Package compress implements spec 4.5's batching and compression:
// varuint32-length-prefixed game-packet records concatenated into one
// payload, optionally Deflate- or Snappy-compressed above a
// negotiated threshold.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"

	"bedrockd/source/codec"
	"bedrockd/source/errs"
)

type Algorithm uint8

const (
	AlgorithmNone Algorithm = iota
	AlgorithmDeflate
	AlgorithmSnappy
)

// Record is a single game packet before batching: packet_id plus
// sub-client routing bits, and its serialized body.
type Record struct {
	PacketID        uint32
	SenderSubclient uint8
	TargetSubclient uint8
	Body            []byte
}

func encodeHeader(r Record) uint32 {
	return (r.PacketID & 0x3ff) | (uint32(r.SenderSubclient&0x3) << 10) | (uint32(r.TargetSubclient&0x3) << 12)
}

func decodeHeader(h uint32) (packetID uint32, sender, target uint8) {
	return h & 0x3ff, uint8((h >> 10) & 0x3), uint8((h >> 12) & 0x3)
}

// Batch concatenates records as varuint32-length-prefixed entries of
// `header varuint || body`.
func Batch(records []Record) []byte {
	w := codec.NewWriter()
	for _, r := range records {
		entry := codec.NewWriter()
		entry.Varuint32(encodeHeader(r))
		entry.Raw(r.Body)
		w.Varuint32(uint32(len(entry.Bytes())))
		w.Raw(entry.Bytes())
	}
	return w.Bytes()
}

// Unbatch splits a decompressed payload back into its records.
func Unbatch(payload []byte) ([]Record, error) {
	r := codec.NewReader(payload)
	var records []Record
	for {
		if r.Remaining() == 0 {
			break
		}
		length, err := r.Varuint32()
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: bad record length", err)
		}
		entryBytes, err := r.Bytes(int(length))
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: truncated record", err)
		}
		entry := codec.NewReader(entryBytes)
		header, err := entry.Varuint32()
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: bad record header", err)
		}
		packetID, sender, target := decodeHeader(header)
		body, err := entry.Bytes(entry.Remaining())
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: bad record body", err)
		}
		records = append(records, Record{PacketID: packetID, SenderSubclient: sender, TargetSubclient: target, Body: body})
	}
	return records, nil
}

// Leading marker byte every Compress output carries, so Decompress
// never has to guess whether a given payload actually got compressed
// — a sub-threshold payload still needs to be told apart from a
// compressed one on the wire (spec 4.5).
const (
	markerDeflate byte = 0x00
	markerSnappy  byte = 0x01
	markerNone    byte = 0xff
)

// Compress applies the negotiated algorithm if payload is at least
// threshold bytes long (0 disables compression entirely; spec 4.5), prefixing
// the result with a marker byte identifying what, if anything, was
// applied so Decompress doesn't need its own threshold to reverse it.
func Compress(payload []byte, algo Algorithm, threshold int) ([]byte, error) {
	if threshold == 0 || len(payload) < threshold || algo == AlgorithmNone {
		return append([]byte{markerNone}, payload...), nil
	}
	switch algo {
	case AlgorithmDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, errs.Wrap(errs.Fatal, "compress: deflate writer init failed", err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, errs.Wrap(errs.Fatal, "compress: deflate write failed", err)
		}
		if err := w.Close(); err != nil {
			return nil, errs.Wrap(errs.Fatal, "compress: deflate close failed", err)
		}
		return append([]byte{markerDeflate}, buf.Bytes()...), nil
	case AlgorithmSnappy:
		return append([]byte{markerSnappy}, snappy.Encode(nil, payload)...), nil
	default:
		return append([]byte{markerNone}, payload...), nil
	}
}

// Decompress reverses Compress, reading the marker byte Compress
// always prepends rather than trusting a caller-supplied algorithm to
// match what a given payload actually used.
func Decompress(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errs.New(errs.Malformed, "compress: empty compressed payload")
	}
	marker, body := payload[0], payload[1:]
	switch marker {
	case markerDeflate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: deflate inflate failed", err)
		}
		return out, nil
	case markerSnappy:
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, errs.Wrap(errs.Malformed, "compress: snappy decode failed", err)
		}
		return out, nil
	case markerNone:
		return body, nil
	default:
		return nil, errs.Wrap(errs.Malformed, "compress: unknown compression marker", fmt.Errorf("marker %#x", marker))
	}
}
