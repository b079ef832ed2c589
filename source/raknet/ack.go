package raknet

import (
	"sort"

	"bedrockd/source/codec"
)

// ACKRecord is one entry of an ACK/NAK record list: either a single
// datagram sequence number or an inclusive contiguous range.
type ACKRecord struct {
	Start uint32
	End   uint32 // equals Start for a Single record
}

func (r ACKRecord) IsSingle() bool { return r.Start == r.End }

// CoalesceSequences sorts the given sequence numbers ascending and
// merges contiguous runs into ranges, emitting Single records for
// isolated values. This is the form spec 4.3.3's periodic ACK flush
// and testable property 8 require.
func CoalesceSequences(seqs []uint32) []ACKRecord {
	if len(seqs) == 0 {
		return nil
	}
	sorted := append([]uint32(nil), seqs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	records := make([]ACKRecord, 0, len(sorted))
	start, end := sorted[0], sorted[0]
	for _, v := range sorted[1:] {
		if v == end {
			continue // dedup
		}
		if v == end+1 {
			end = v
			continue
		}
		records = append(records, ACKRecord{Start: start, End: end})
		start, end = v, v
	}
	records = append(records, ACKRecord{Start: start, End: end})
	return records
}

// ExpandRecords is the inverse of CoalesceSequences, used by tests and
// by NAK handling to walk every sequence number a record covers.
func ExpandRecords(records []ACKRecord) []uint32 {
	var out []uint32
	for _, r := range records {
		for s := r.Start; s <= r.End; s++ {
			out = append(out, s)
		}
	}
	return out
}

// EncodeACKList writes an ACK or NAK record list: header flag byte,
// a 16-bit record count, then one tag byte (1=single, 0=range) and
// one or two 24-bit little-endian values per record.
func EncodeACKList(flag byte, records []ACKRecord) []byte {
	w := codec.NewWriter()
	w.Uint8(FlagConnected | flag)
	w.Uint16LE(uint16(len(records)))
	for _, r := range records {
		if r.IsSingle() {
			w.Uint8(1)
			w.Uint24LE(r.Start)
		} else {
			w.Uint8(0)
			w.Uint24LE(r.Start)
			w.Uint24LE(r.End)
		}
	}
	return w.Bytes()
}

// DecodeACKList parses the body of an ACK or NAK datagram (the flag
// byte already consumed by the caller).
func DecodeACKList(r *codec.Reader) ([]ACKRecord, error) {
	count, err := r.Uint16LE()
	if err != nil {
		return nil, err
	}
	records := make([]ACKRecord, 0, count)
	for i := uint16(0); i < count; i++ {
		tag, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		start, err := r.Uint24LE()
		if err != nil {
			return nil, err
		}
		end := start
		if tag == 0 {
			if end, err = r.Uint24LE(); err != nil {
				return nil, err
			}
		}
		records = append(records, ACKRecord{Start: start, End: end})
	}
	return records, nil
}
