// Package journal persists auction events as an append-only stream of CBOR records.
package journal

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/core"
)

// Record is one journal entry. Payload holds the CBOR-encoded event.
type Record struct {
	ID      string          `cbor:"id"`
	Seq     uint64          `cbor:"seq"`
	Kind    core.EventKind  `cbor:"kind"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// Event decodes the record payload into its typed event.
func (r Record) Event() (core.Event, error) {
	return core.DecodeEvent(r.Kind, func(v any) error {
		return cbor.Unmarshal(r.Payload, v)
	})
}

// Writer appends records to an io.Writer. It implements core.Sink; write
// failures are logged and remembered but never surface to the emitter.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	seq    uint64
	err    error
	logger zerolog.Logger
}

// NewWriter returns a journal writing to w.
func NewWriter(w io.Writer, logger zerolog.Logger) *Writer {
	return &Writer{
		enc:    cbor.NewEncoder(w),
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

func (j *Writer) Emit(e core.Event) {
	if err := j.Append(e); err != nil {
		j.logger.Error().Err(err).Str("kind", string(e.Kind())).Msg("Failed to append event to journal")
	}
}

// Append encodes e as the next record.
func (j *Writer) Append(e core.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	payload, err := cbor.Marshal(e)
	if err != nil {
		j.err = err
		return fmt.Errorf("encode %s payload: %w", e.Kind(), err)
	}

	j.seq++
	record := Record{
		ID:      uuid.NewString(),
		Seq:     j.seq,
		Kind:    e.Kind(),
		Payload: payload,
	}
	if err := j.enc.Encode(record); err != nil {
		j.err = err
		return fmt.Errorf("write record %d: %w", record.Seq, err)
	}
	return nil
}

// Err returns the last write error, if any.
func (j *Writer) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)
	records := make([]Record, 0)
	for {
		var record Record
		err := dec.Decode(&record)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
}

// ReadEvents decodes every record in r into its typed event.
func ReadEvents(r io.Reader) ([]core.Event, error) {
	records, err := ReadAll(r)
	if err != nil {
		return nil, err
	}
	events := make([]core.Event, 0, len(records))
	for _, record := range records {
		e, err := record.Event()
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", record.Seq, err)
		}
		events = append(events, e)
	}
	return events, nil
}
