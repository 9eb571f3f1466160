package pkg

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// ClientUpdate is the only message clients send. Every field is optional;
// an absent field means "no change".
type ClientUpdate struct {
	RoomName        *string
	PointerXPercent *float32
	PointerYPercent *float32
}

// ClientPointer is one entry of a ServerUpdate's ClientUpdates sequence.
type ClientPointer struct {
	ID              uint32
	PointerXPercent *float32
	PointerYPercent *float32
}

// ServerUpdate is the only message the server sends. A nil slice means the
// field is absent on the wire; an empty non-nil slice is present with zero
// elements.
type ServerUpdate struct {
	MyID            *uint32
	RoomName        *string
	ClientCount     *uint16
	ClientUpdates   []ClientPointer
	RemoveClientIDs []uint32
}

// Wire format: little-endian Borsh. Each optional field is a presence byte
// (0 or 1) followed by the value when present. Strings and sequences carry a
// u32 length prefix.

func EncodeClientUpdate(u ClientUpdate) []byte {
	buf := appendOptionString(nil, u.RoomName)
	buf = appendOptionF32(buf, u.PointerXPercent)
	buf = appendOptionF32(buf, u.PointerYPercent)
	return buf
}

func EncodeServerUpdate(u ServerUpdate) []byte {
	buf := appendOptionU32(nil, u.MyID)
	buf = appendOptionString(buf, u.RoomName)
	buf = appendOptionU16(buf, u.ClientCount)

	if u.ClientUpdates == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.ClientUpdates)))
		for _, cu := range u.ClientUpdates {
			buf = binary.LittleEndian.AppendUint32(buf, cu.ID)
			buf = appendOptionF32(buf, cu.PointerXPercent)
			buf = appendOptionF32(buf, cu.PointerYPercent)
		}
	}

	if u.RemoveClientIDs == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.RemoveClientIDs)))
		for _, id := range u.RemoveClientIDs {
			buf = binary.LittleEndian.AppendUint32(buf, id)
		}
	}

	return buf
}

func DecodeClientUpdate(data []byte) (ClientUpdate, error) {
	d := decoder{buf: data}

	var u ClientUpdate
	var err error

	if u.RoomName, err = d.optionString(); err != nil {
		return ClientUpdate{}, err
	}
	if u.PointerXPercent, err = d.optionF32(); err != nil {
		return ClientUpdate{}, err
	}
	if u.PointerYPercent, err = d.optionF32(); err != nil {
		return ClientUpdate{}, err
	}
	if err = d.finish(); err != nil {
		return ClientUpdate{}, err
	}

	return u, nil
}

func DecodeServerUpdate(data []byte) (ServerUpdate, error) {
	d := decoder{buf: data}

	var u ServerUpdate
	var err error

	if u.MyID, err = d.optionU32(); err != nil {
		return ServerUpdate{}, err
	}
	if u.RoomName, err = d.optionString(); err != nil {
		return ServerUpdate{}, err
	}
	if u.ClientCount, err = d.optionU16(); err != nil {
		return ServerUpdate{}, err
	}

	present, err := d.option()
	if err != nil {
		return ServerUpdate{}, err
	}
	if present {
		// Each entry is at least 6 bytes (id plus two presence bytes).
		count, err := d.sequenceLength(6)
		if err != nil {
			return ServerUpdate{}, err
		}
		u.ClientUpdates = make([]ClientPointer, 0, count)
		for i := 0; i < count; i++ {
			var cu ClientPointer
			if cu.ID, err = d.u32(); err != nil {
				return ServerUpdate{}, err
			}
			if cu.PointerXPercent, err = d.optionF32(); err != nil {
				return ServerUpdate{}, err
			}
			if cu.PointerYPercent, err = d.optionF32(); err != nil {
				return ServerUpdate{}, err
			}
			u.ClientUpdates = append(u.ClientUpdates, cu)
		}
	}

	present, err = d.option()
	if err != nil {
		return ServerUpdate{}, err
	}
	if present {
		count, err := d.sequenceLength(4)
		if err != nil {
			return ServerUpdate{}, err
		}
		u.RemoveClientIDs = make([]uint32, 0, count)
		for i := 0; i < count; i++ {
			id, err := d.u32()
			if err != nil {
				return ServerUpdate{}, err
			}
			u.RemoveClientIDs = append(u.RemoveClientIDs, id)
		}
	}

	if err = d.finish(); err != nil {
		return ServerUpdate{}, err
	}

	return u, nil
}

func appendOptionU16(buf []byte, v *uint16) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return binary.LittleEndian.AppendUint16(buf, *v)
}

func appendOptionU32(buf []byte, v *uint32) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return binary.LittleEndian.AppendUint32(buf, *v)
}

func appendOptionF32(buf []byte, v *float32) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(*v))
}

func appendOptionString(buf []byte, v *string) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(*v)))
	return append(buf, *v...)
}

// decoder walks a message buffer, failing on any read past the end.
type decoder struct {
	buf    []byte
	offset int
}

func (d *decoder) bytes(length int) ([]byte, error) {
	if length > len(d.buf)-d.offset {
		return nil, fmt.Errorf("message truncated at offset %d", d.offset)
	}
	b := d.buf[d.offset : d.offset+length]
	d.offset += length
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) f32() (float32, error) {
	bits, err := d.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (d *decoder) option() (bool, error) {
	b, err := d.bytes(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid presence tag 0x%02x at offset %d", b[0], d.offset-1)
	}
}

func (d *decoder) optionU16() (*uint16, error) {
	present, err := d.option()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.u16()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *decoder) optionU32() (*uint32, error) {
	present, err := d.option()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.u32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *decoder) optionF32() (*float32, error) {
	present, err := d.option()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.f32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *decoder) optionString() (*string, error) {
	present, err := d.option()
	if err != nil || !present {
		return nil, err
	}
	length, err := d.u32()
	if err != nil {
		return nil, err
	}
	b, err := d.bytes(int(length))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("invalid utf-8 in string at offset %d", d.offset-len(b))
	}
	s := string(b)
	return &s, nil
}

// sequenceLength reads a sequence's element count and rejects counts that
// cannot fit in the remaining bytes given the minimum element size.
func (d *decoder) sequenceLength(minElementSize int) (int, error) {
	count, err := d.u32()
	if err != nil {
		return 0, err
	}
	if int64(count)*int64(minElementSize) > int64(len(d.buf)-d.offset) {
		return 0, fmt.Errorf("sequence length %d exceeds remaining message", count)
	}
	return int(count), nil
}

func (d *decoder) finish() error {
	if d.offset != len(d.buf) {
		return fmt.Errorf("%d undecoded bytes after message", len(d.buf)-d.offset)
	}
	return nil
}
