// Package binary implements the compiled-script container format of
// spec.md §4.6: a magic-tagged header, an extension table, and a sequence
// of opaque blocks (block 0 is always the main program), integrity-checked
// with a BLAKE2b-256 hash over everything that follows it.
package binary

import (
	"bytes"
	"fmt"
	"io"
)

// PutUvarint appends v to buf as a 7-bit-group, MSB-continuation varint
// (spec.md §4.6).
func PutUvarint(buf *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

// ReadUvarint reads a varint written by PutUvarint.
func ReadUvarint(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("binary: truncated uvarint: %w", err)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("binary: uvarint overflow")
		}
	}
}

// zigzag/unzigzag map signed deltas to and from uvarint encoding, used for
// the "offset" primitive (a signed varint relative to the byte immediately
// following its own encoding, per spec.md §4.6).
func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// PutOffset appends delta in its minimal varint encoding, for a value that
// is known once and never patched afterwards.
func PutOffset(buf *bytes.Buffer, delta int64) {
	PutUvarint(buf, zigzag(delta))
}

// ReadOffset reads a value written by PutOffset or PatchOffset: the fixed
// and minimal encodings are wire-compatible, since padding only adds
// zero-valued continuation groups that decode to the same number.
func ReadOffset(r *bytes.Reader) (int64, error) {
	u, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return unzigzag(u), nil
}

// OffsetWidth is the fixed byte width codegen reserves for every jump
// offset, so a forward reference can be patched in place once its target is
// known (spec.md §4.7). 5 bytes of 7-bit groups covers signed deltas up to
// roughly ±17GB of code, far beyond any real script.
const OffsetWidth = 5

// PutOffsetPlaceholder reserves OffsetWidth zero bytes at the current
// position and returns their offset within buf, for a later PatchOffset
// call once the jump target is known.
func PutOffsetPlaceholder(buf *bytes.Buffer) int {
	pos := buf.Len()
	for i := 0; i < OffsetWidth; i++ {
		buf.WriteByte(0)
	}
	return pos
}

// PatchOffset overwrites the OffsetWidth-byte placeholder at pos (reserved
// earlier by PutOffsetPlaceholder) with delta's fixed-width encoding. Safe
// to call after further writes to buf: bytes.Buffer never relocates bytes
// already written, only grows past them.
func PatchOffset(buf *bytes.Buffer, pos int, delta int64) {
	u := zigzag(delta)
	enc := make([]byte, OffsetWidth)
	for i := 0; i < OffsetWidth; i++ {
		b := byte(u & 0x7f)
		u >>= 7
		if i < OffsetWidth-1 {
			b |= 0x80
		}
		enc[i] = b
	}
	copy(buf.Bytes()[pos:pos+OffsetWidth], enc)
}

// PutString appends s as a uvarint length prefix followed by its raw bytes.
func PutString(buf *bytes.Buffer, s string) {
	PutUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// ReadString reads a string written by PutString.
func ReadString(r *bytes.Reader) (string, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("binary: truncated string: %w", err)
	}
	return string(b), nil
}

// PutBytes appends b as a uvarint length prefix followed by the raw bytes,
// used for opaque block payloads.
func PutBytes(buf *bytes.Buffer, b []byte) {
	PutUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

// ReadBytes reads a byte slice written by PutBytes.
func ReadBytes(r *bytes.Reader) ([]byte, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("binary: truncated bytes: %w", err)
	}
	return b, nil
}
