// Package erasure implements the k-of-n fragment layout used for chunk storage.
//
// A chunk is zero-padded to a multiple of k bytes, split into k equally sized
// data fragments and extended with m Reed-Solomon parity fragments. Any k of
// the resulting n = k+m fragments rebuild the chunk byte-for-byte.
package erasure

import (
	"fmt"
	"hash/crc64"
	"sort"

	"github.com/klauspost/reedsolomon"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// PaddingSize returns the number of zero bytes appended to a payload of
// originalSize bytes so that it divides evenly into dataShards segments.
func PaddingSize(originalSize int64, dataShards int) int64 {
	k := int64(dataShards)
	return ((-originalSize)%k + k) % k
}

// FragmentSize returns ceil(originalSize / dataShards).
func FragmentSize(originalSize int64, dataShards int) int64 {
	return (originalSize + PaddingSize(originalSize, dataShards)) / int64(dataShards)
}

// FragmentHash returns the CRC64 (ISO) checksum of a fragment as 16 hex digits.
func FragmentHash(fragment []byte) string {
	return fmt.Sprintf("%016x", crc64.Checksum(fragment, crcTable))
}

func validate(dataShards, parityShards int) error {
	if dataShards < 1 || parityShards < 0 {
		return fmt.Errorf("%w: k=%d m=%d", zerrors.ErrInvalidParameters, dataShards, parityShards)
	}
	return nil
}

func newEncoder(dataShards, parityShards int) (reedsolomon.Encoder, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: creating reed-solomon encoder: %w", zerrors.ErrInvalidParameters, err)
	}
	return enc, nil
}

// Encode splits payload into dataShards data fragments and derives
// parityShards parity fragments. It returns all n fragments ordered by index
// together with the padding that was appended to the payload.
func Encode(payload []byte, dataShards, parityShards int) ([][]byte, int64, error) {
	if err := validate(dataShards, parityShards); err != nil {
		return nil, 0, err
	}

	originalSize := int64(len(payload))
	padding := PaddingSize(originalSize, dataShards)
	size := int(FragmentSize(originalSize, dataShards))
	total := dataShards + parityShards

	// One backing buffer; parity regions start zeroed and are filled by Encode.
	buf := make([]byte, size*total)
	copy(buf, payload)
	fragments := make([][]byte, total)
	for i := range fragments {
		fragments[i] = buf[i*size : (i+1)*size : (i+1)*size]
	}

	if size == 0 || parityShards == 0 {
		return fragments, padding, nil
	}

	enc, err := newEncoder(dataShards, parityShards)
	if err != nil {
		return nil, 0, err
	}
	if err := enc.Encode(fragments); err != nil {
		return nil, 0, fmt.Errorf("encoding parity fragments: %w", err)
	}

	log.Debugf("Encoded %d bytes into %d+%d fragments of %d bytes", originalSize, dataShards, parityShards, size)
	return fragments, padding, nil
}

// Decode rebuilds the original payload from any dataShards of the fragments.
// The map is keyed by fragment index; indices outside [0, n) are ignored. When
// more than dataShards fragments are supplied the lowest indices are used, and
// because the code is exact the output does not depend on that choice.
func Decode(fragments map[int][]byte, dataShards, parityShards int, originalSize int64) ([]byte, error) {
	if err := validate(dataShards, parityShards); err != nil {
		return nil, err
	}
	if originalSize < 0 {
		return nil, fmt.Errorf("%w: negative original size %d", zerrors.ErrInvalidParameters, originalSize)
	}

	total := dataShards + parityShards
	indices := make([]int, 0, len(fragments))
	for i := range fragments {
		if i < 0 || i >= total {
			log.Debugf("Ignoring fragment with out-of-range index %d (n=%d)", i, total)
			continue
		}
		indices = append(indices, i)
	}
	if len(indices) < dataShards {
		return nil, fmt.Errorf("%w: have %d, need %d", zerrors.ErrInsufficientFragments, len(indices), dataShards)
	}
	sort.Ints(indices)
	chosen := indices[:dataShards]

	size := len(fragments[chosen[0]])
	for _, i := range chosen[1:] {
		if len(fragments[i]) != size {
			return nil, fmt.Errorf("%w: fragment %d has %d bytes, fragment %d has %d",
				zerrors.ErrCorruptFragment, chosen[0], size, i, len(fragments[i]))
		}
	}
	if expected := FragmentSize(originalSize, dataShards); int64(size) != expected {
		return nil, fmt.Errorf("%w: fragments have %d bytes, expected %d",
			zerrors.ErrCorruptFragment, size, expected)
	}
	if size == 0 {
		return []byte{}, nil
	}

	shards := make([][]byte, total)
	for _, i := range chosen {
		shards[i] = fragments[i]
	}

	if chosen[dataShards-1] >= dataShards {
		enc, err := newEncoder(dataShards, parityShards)
		if err != nil {
			return nil, err
		}
		if err := enc.ReconstructData(shards); err != nil {
			return nil, fmt.Errorf("reconstructing data fragments: %w", err)
		}
	}

	out := make([]byte, 0, size*dataShards)
	for i := 0; i < dataShards; i++ {
		out = append(out, shards[i]...)
	}
	return out[:originalSize], nil
}
