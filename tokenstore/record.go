package tokenstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	recordFormatVersionCurrent = 2
	// v1 files were written by the single-token client and carry only Token.
	recordFormatVersionV1 = 1
)

type record struct {
	Version   uint8             `cbor:"1,keyasint"`
	Entries   map[string]string `cbor:"2,keyasint,omitempty"`
	UpdatedAt int64             `cbor:"3,keyasint,omitempty"`
	Token     string            `cbor:"4,keyasint,omitempty"`
}

var recordEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

func encodeRecord(entries map[string]string, updatedAt int64) ([]byte, error) {
	for name := range entries {
		if !validKey(name) {
			return nil, fmt.Errorf("encode record: %w: %q", ErrUnknownKey, name)
		}
	}
	return recordEncMode.Marshal(record{
		Version:   recordFormatVersionCurrent,
		Entries:   entries,
		UpdatedAt: updatedAt,
	})
}

func decodeRecord(data []byte) (map[string]string, error) {
	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	out := make(map[string]string, len(Keys))
	switch rec.Version {
	case recordFormatVersionCurrent:
		for name, value := range rec.Entries {
			if !validKey(name) {
				return nil, fmt.Errorf("%w: unknown entry %q", ErrCorrupt, name)
			}
			if value != "" {
				out[name] = value
			}
		}
	case recordFormatVersionV1:
		if rec.Token != "" {
			out[KeyLegacy] = rec.Token
		}
	default:
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorrupt, rec.Version)
	}
	return out, nil
}
