package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/endlessm/eos-metrics-go/payload"
)

// IndividualRecord is a single timestamped event, signature (ay, i64, mv)
// per spec.md §6: event UUID, a relative timestamp, and an optional
// payload.
type IndividualRecord struct {
	EventID  uuid.UUID
	Relative int64
	Payload  *payload.Payload
}

// AggregateRecord is a counted event, signature (ay, i64, i64, mv): event
// UUID, relative timestamp, count, optional payload.
type AggregateRecord struct {
	EventID  uuid.UUID
	Relative int64
	Count    int64
	Payload  *payload.Payload
}

// SequenceEvent is one entry of a SequenceRecord's (i64, mv) tuple array.
type SequenceEvent struct {
	Relative int64
	Payload  *payload.Payload
}

// SequenceRecord is an ordered run of events sharing one event UUID,
// signature (ay, a(i64, mv)).
type SequenceRecord struct {
	EventID uuid.UUID
	Events  []SequenceEvent
}

// encodeMaybeVariant writes the "mv" (maybe-variant) wire shape: a
// presence byte, followed — only if present — by a little-endian length
// prefix and the JSON encoding of p. JSON is reused here rather than a
// bespoke variant encoder because payload.Value already round-trips
// through encoding/json for the sender's QueueFile; one serialization
// format for "arbitrary tagged payload" is enough.
func encodeMaybeVariant(buf *bytes.Buffer, p *payload.Payload) error {
	if p == nil {
		buf.WriteByte(0)
		return nil
	}
	buf.WriteByte(1)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload variant: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(len(data))); err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func decodeMaybeVariant(r *bytes.Reader) (*payload.Payload, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read variant presence byte: %w", err)
	}
	if present == 0 {
		return nil, nil
	}

	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("read variant length: %w", err)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read variant bytes: %w", err)
	}

	var p payload.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload variant: %w", err)
	}
	return &p, nil
}

func encodeIndividual(rec IndividualRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rec.EventID[:])
	if err := binary.Write(&buf, binary.LittleEndian, rec.Relative); err != nil {
		return nil, err
	}
	if err := encodeMaybeVariant(&buf, rec.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeIndividual(data []byte) (IndividualRecord, error) {
	r := bytes.NewReader(data)
	var rec IndividualRecord
	if _, err := io.ReadFull(r, rec.EventID[:]); err != nil {
		return rec, fmt.Errorf("read event id: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Relative); err != nil {
		return rec, fmt.Errorf("read relative timestamp: %w", err)
	}
	p, err := decodeMaybeVariant(r)
	if err != nil {
		return rec, err
	}
	rec.Payload = p
	return rec, nil
}

func encodeAggregate(rec AggregateRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rec.EventID[:])
	if err := binary.Write(&buf, binary.LittleEndian, rec.Relative); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, rec.Count); err != nil {
		return nil, err
	}
	if err := encodeMaybeVariant(&buf, rec.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAggregate(data []byte) (AggregateRecord, error) {
	r := bytes.NewReader(data)
	var rec AggregateRecord
	if _, err := io.ReadFull(r, rec.EventID[:]); err != nil {
		return rec, fmt.Errorf("read event id: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Relative); err != nil {
		return rec, fmt.Errorf("read relative timestamp: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Count); err != nil {
		return rec, fmt.Errorf("read count: %w", err)
	}
	p, err := decodeMaybeVariant(r)
	if err != nil {
		return rec, err
	}
	rec.Payload = p
	return rec, nil
}

func encodeSequence(rec SequenceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rec.EventID[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(rec.Events))); err != nil {
		return nil, err
	}
	for _, ev := range rec.Events {
		if err := binary.Write(&buf, binary.LittleEndian, ev.Relative); err != nil {
			return nil, err
		}
		if err := encodeMaybeVariant(&buf, ev.Payload); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeSequence(data []byte) (SequenceRecord, error) {
	r := bytes.NewReader(data)
	var rec SequenceRecord
	if _, err := io.ReadFull(r, rec.EventID[:]); err != nil {
		return rec, fmt.Errorf("read event id: %w", err)
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return rec, fmt.Errorf("read sequence length: %w", err)
	}
	rec.Events = make([]SequenceEvent, 0, count)
	for i := uint64(0); i < count; i++ {
		var ev SequenceEvent
		if err := binary.Read(r, binary.LittleEndian, &ev.Relative); err != nil {
			return rec, fmt.Errorf("read sequence element %d timestamp: %w", i, err)
		}
		p, err := decodeMaybeVariant(r)
		if err != nil {
			return rec, fmt.Errorf("read sequence element %d payload: %w", i, err)
		}
		ev.Payload = p
		rec.Events = append(rec.Events, ev)
	}
	return rec, nil
}
