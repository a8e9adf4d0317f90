package snapshot

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldSequence   protowire.Number = 1
	fieldStamp      protowire.Number = 2
	fieldFrameID    protowire.Number = 3
	fieldResolution protowire.Number = 4
	fieldWidth      protowire.Number = 5
	fieldHeight     protowire.Number = 6
	fieldOriginX    protowire.Number = 7
	fieldOriginY    protowire.Number = 8
	fieldOriginZ    protowire.Number = 9
	fieldData       protowire.Number = 10
	fieldMode       protowire.Number = 11
)

// MaxCells bounds the grid size accepted by Unmarshal.
const MaxCells = 1 << 24

// ErrMalformed is returned by Unmarshal for input that does not describe a
// valid snapshot.
var ErrMalformed = errors.New("snapshot: malformed encoding")

// Marshal encodes s in the fixed wire layout.
func Marshal(s *Snapshot) []byte {
	b := make([]byte, 0, len(s.Data)+len(s.FrameID)+len(s.Mode)+96)
	if s.Sequence != 0 {
		b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Sequence)
	}
	if !s.Stamp.IsZero() {
		b = protowire.AppendTag(b, fieldStamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Stamp.UnixNano()))
	}
	if s.FrameID != "" {
		b = protowire.AppendTag(b, fieldFrameID, protowire.BytesType)
		b = protowire.AppendString(b, s.FrameID)
	}
	b = appendDouble(b, fieldResolution, s.Resolution)
	b = protowire.AppendTag(b, fieldWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Width))
	b = protowire.AppendTag(b, fieldHeight, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Height))
	b = appendDouble(b, fieldOriginX, s.OriginX)
	b = appendDouble(b, fieldOriginY, s.OriginY)
	b = appendDouble(b, fieldOriginZ, s.OriginZ)

	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(s.Data)))
	for _, v := range s.Data {
		b = append(b, byte(v))
	}
	if s.Mode != "" {
		b = protowire.AppendTag(b, fieldMode, protowire.BytesType)
		b = protowire.AppendString(b, s.Mode)
	}
	return b
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// Unmarshal decodes a snapshot. Unknown fields are skipped so that newer
// producers can add fields without breaking older consumers.
func Unmarshal(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	var width, height uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSequence && typ == protowire.VarintType:
			s.Sequence, n = protowire.ConsumeVarint(b)
		case num == fieldStamp && typ == protowire.VarintType:
			var ns uint64
			ns, n = protowire.ConsumeVarint(b)
			s.Stamp = time.Unix(0, int64(ns)).UTC()
		case num == fieldFrameID && typ == protowire.BytesType:
			s.FrameID, n = protowire.ConsumeString(b)
		case num == fieldMode && typ == protowire.BytesType:
			s.Mode, n = protowire.ConsumeString(b)
		case num == fieldResolution && typ == protowire.Fixed64Type:
			s.Resolution, n = consumeDouble(b)
		case num == fieldOriginX && typ == protowire.Fixed64Type:
			s.OriginX, n = consumeDouble(b)
		case num == fieldOriginY && typ == protowire.Fixed64Type:
			s.OriginY, n = consumeDouble(b)
		case num == fieldOriginZ && typ == protowire.Fixed64Type:
			s.OriginZ, n = consumeDouble(b)
		case num == fieldWidth && typ == protowire.VarintType:
			width, n = protowire.ConsumeVarint(b)
		case num == fieldHeight && typ == protowire.VarintType:
			height, n = protowire.ConsumeVarint(b)
		case num == fieldData && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				s.Data = make([]int8, len(raw))
				for i, v := range raw {
					s.Data[i] = int8(v)
				}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if width == 0 || height == 0 || width > MaxCells || height > MaxCells || width*height > MaxCells {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrMalformed, width, height)
	}
	s.Width, s.Height = int(width), int(height)
	if len(s.Data) != s.Width*s.Height {
		return nil, fmt.Errorf("%w: %d cells for a %dx%d grid", ErrMalformed, len(s.Data), s.Width, s.Height)
	}
	if !(s.Resolution > 0) || math.IsInf(s.Resolution, 0) {
		return nil, fmt.Errorf("%w: invalid resolution %v", ErrMalformed, s.Resolution)
	}
	return s, nil
}

func consumeDouble(b []byte) (float64, int) {
	v, n := protowire.ConsumeFixed64(b)
	return math.Float64frombits(v), n
}
