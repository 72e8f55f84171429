package kv

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wbrown/janus-cep/cep"
)

// Row codec: a one-byte type tag per value followed by a fixed or
// length-prefixed payload. Rows are short, so the format optimizes for
// simplicity over density.

const (
	tagInt   = byte('i')
	tagFloat = byte('f')
	tagBool  = byte('b')
	tagStr   = byte('s')
)

func encodeRow(row []cep.Value) []byte {
	var buf []byte
	var scratch [8]byte
	for _, v := range row {
		switch v.Type() {
		case cep.TypeInt:
			n, _ := v.AsInt()
			buf = append(buf, tagInt)
			binary.BigEndian.PutUint64(scratch[:], uint64(n))
			buf = append(buf, scratch[:]...)
		case cep.TypeFloat:
			f, _ := v.AsFloat()
			buf = append(buf, tagFloat)
			binary.BigEndian.PutUint64(scratch[:], math.Float64bits(f))
			buf = append(buf, scratch[:]...)
		case cep.TypeBool:
			b, _ := v.AsBool()
			buf = append(buf, tagBool)
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case cep.TypeStr:
			s, _ := v.AsStr()
			buf = append(buf, tagStr)
			binary.BigEndian.PutUint64(scratch[:], uint64(len(s)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, s...)
		}
	}
	return buf
}

func decodeRow(buf []byte) ([]cep.Value, error) {
	var row []cep.Value
	for len(buf) > 0 {
		tag := buf[0]
		buf = buf[1:]
		switch tag {
		case tagInt:
			if len(buf) < 8 {
				return nil, fmt.Errorf("truncated int value")
			}
			row = append(row, cep.Int(int64(binary.BigEndian.Uint64(buf[:8]))))
			buf = buf[8:]
		case tagFloat:
			if len(buf) < 8 {
				return nil, fmt.Errorf("truncated float value")
			}
			row = append(row, cep.Float(math.Float64frombits(binary.BigEndian.Uint64(buf[:8]))))
			buf = buf[8:]
		case tagBool:
			if len(buf) < 1 {
				return nil, fmt.Errorf("truncated bool value")
			}
			row = append(row, cep.Bool(buf[0] != 0))
			buf = buf[1:]
		case tagStr:
			if len(buf) < 8 {
				return nil, fmt.Errorf("truncated string length")
			}
			n := binary.BigEndian.Uint64(buf[:8])
			buf = buf[8:]
			if uint64(len(buf)) < n {
				return nil, fmt.Errorf("truncated string value")
			}
			row = append(row, cep.Str(string(buf[:n])))
			buf = buf[n:]
		default:
			return nil, fmt.Errorf("unknown value tag %q", tag)
		}
	}
	return row, nil
}
