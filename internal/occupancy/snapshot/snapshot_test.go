package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
)

func sample() *Snapshot {
	return &Snapshot{
		Sequence:   42,
		Stamp:      time.Unix(1700000000, 123456789).UTC(),
		FrameID:    "map",
		Mode:       "fused",
		Resolution: 0.5,
		Width:      3,
		Height:     2,
		OriginX:    -0.75,
		OriginY:    10.25,
		OriginZ:    0.3,
		Data:       []int8{-1, 0, 19, 50, 70, 99},
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	want := sample()
	got, err := Unmarshal(Marshal(want))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_ZeroStampAndSequence(t *testing.T) {
	want := sample()
	want.Sequence = 0
	want.Stamp = time.Time{}
	want.FrameID = ""
	got, err := Unmarshal(Marshal(want))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := Marshal(sample())
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future field")
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Errorf("decoded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(s *Snapshot)
		raw  []byte
	}{
		{name: "cell count mismatch", mod: func(s *Snapshot) { s.Data = s.Data[:4] }},
		{name: "zero width", mod: func(s *Snapshot) { s.Width = 0; s.Data = nil }},
		{name: "zero resolution", mod: func(s *Snapshot) { s.Resolution = 0 }},
		{name: "truncated", raw: Marshal(sample())[:10]},
		{name: "garbage tag", raw: []byte{0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.raw
			if tt.mod != nil {
				s := sample()
				tt.mod(s)
				b = Marshal(s)
			}
			_, err := Unmarshal(b)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}
}

func TestAtAndWorldToCell(t *testing.T) {
	s := sample()
	if v, ok := s.At(2, 1); !ok || v != 99 {
		t.Errorf("At(2,1) = %d, %v", v, ok)
	}
	if _, ok := s.At(3, 0); ok {
		t.Error("At(3,0) should be out of bounds")
	}
	x, y, ok := s.WorldToCell(0.3, 10.3)
	if !ok || x != 2 || y != 0 {
		t.Errorf("WorldToCell = %d,%d,%v, want 2,0,true", x, y, ok)
	}
	if _, _, ok := s.WorldToCell(-1, 10.3); ok {
		t.Error("expected point left of origin to be outside")
	}
}

func TestCounts(t *testing.T) {
	s := sample()
	s.Data = []int8{costvalue.UnknownCost, 0, 40, 50, 70, 99}
	got := s.Counts()
	want := Counts{Unknown: 1, Free: 2, Neutral: 1, Occupied: 2, Lethal: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}
