package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// lengthPrefixSize is the on-disk width of a record's length prefix.
// spec.md §6 calls this "host-word width, typically 64-bit"; we always
// write 8 bytes, little-endian, regardless of host (see SPEC_FULL.md's
// Open Question Decisions on endianness).
const lengthPrefixSize = 8

// writeFramedRecord appends a [len][bytes] frame to w.
func writeFramedRecord(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(data))); err != nil {
		return fmt.Errorf("write record length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write record bytes: %w", err)
	}
	return nil
}

// readFramedRecord reads one [len][bytes] frame from r. ok is false only
// when r is exactly at EOF before the length prefix (a clean end of
// stream); any other short read is an error, per spec.md §5's "a crash
// mid-append can leave a truncated trailing record — drain must treat a
// short read as an error."
func readFramedRecord(r io.Reader) (data []byte, ok bool, err error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read record length: %w", err)
	}

	data = make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, false, fmt.Errorf("truncated record body: %w", err)
	}
	return data, true, nil
}
