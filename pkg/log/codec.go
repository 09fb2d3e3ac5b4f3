package log

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// FileExtension is the conventional suffix of protocol log files.
const FileExtension = ".plog"

// fileMagic opens every log file: the CBOR self-described tag (55799,
// RFC 8949 section 3.4.6). It lets file(1) and CBOR tools recognize the
// stream and is skipped by Reader.
var fileMagic = []byte{0xd9, 0xd9, 0xf7}

var (
	eventEncMode cbor.EncMode
	eventDecMode cbor.DecMode
)

func init() {
	var err error

	eventEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: encoder mode: %v", err))
	}

	// Files are only ever written by FileLogger, so anything looser than
	// what it produces is corruption.
	eventDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: decoder mode: %v", err))
	}
}

// MarshalEvent encodes a single event.
func MarshalEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// UnmarshalEvent decodes a single event.
func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// skipMagic consumes the file header if present. Files written before the
// header existed start directly with an event.
func skipMagic(r *bufio.Reader) error {
	head, err := r.Peek(len(fileMagic))
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if bytes.Equal(head, fileMagic) {
		_, err = r.Discard(len(fileMagic))
	}
	return err
}
