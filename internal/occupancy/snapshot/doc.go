// Package snapshot defines the grid handed to publishers once per cycle and
// its fixed binary encoding.
//
// A Snapshot is immutable once published: sinks, the gRPC stream, the HTTP
// monitor and the store all share the same value and must not modify Data.
//
// Wire layout (protobuf encoding, field numbers are a compatibility contract):
//
//	1  sequence      varint
//	2  stamp         varint, unix nanoseconds
//	3  frame_id      bytes
//	4  resolution    fixed64 (float64 bits)
//	5  width         varint
//	6  height        varint
//	7  origin_x      fixed64
//	8  origin_y      fixed64
//	9  origin_z      fixed64
//	10 data          bytes, one int8 per cell, row-major
//	11 mode          bytes
//
// Dependency rule: may depend on costvalue only.
package snapshot
