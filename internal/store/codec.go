package store

import (
	"encoding/binary"
	"fmt"
)

// This file is the hand-rolled binary codec row values are encoded
// with. These values never cross a wire boundary (only the JSON-RPC
// surface does, and that already uses encoding/json), so a small
// fixed codec is all a row value needs.

type encoder struct {
	buf []byte
}

func (e *encoder) putUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

type decoder struct {
	buf []byte
	off int
}

func newDecoder(b []byte) *decoder {
	return &decoder{buf: b}
}

func (d *decoder) getUint16() (uint16, error) {
	if len(d.buf)-d.off < 2 {
		return 0, fmt.Errorf("codec: truncated uint16")
	}
	v := binary.LittleEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) getUint32() (uint32, error) {
	if len(d.buf)-d.off < 4 {
		return 0, fmt.Errorf("codec: truncated uint32")
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) getUint64() (uint64, error) {
	if len(d.buf)-d.off < 8 {
		return 0, fmt.Errorf("codec: truncated uint64")
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getUint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(d.buf)-d.off) < n {
		return nil, fmt.Errorf("codec: truncated byte slice")
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decoder) getFixed(n int) ([]byte, error) {
	if len(d.buf)-d.off < n {
		return nil, fmt.Errorf("codec: truncated fixed field of length %d", n)
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+n])
	d.off += n
	return out, nil
}

func (d *decoder) atEnd() bool {
	return d.off == len(d.buf)
}
