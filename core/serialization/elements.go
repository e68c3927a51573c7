// Copyright (c) 2017-2020 The randchain developers
package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/randchain/randchaind/common/hash"
)

var littleEndian = binary.LittleEndian

// ReadElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = buf[0]
		return nil

	case *uint32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = littleEndian.Uint32(buf[:])
		return nil

	case *uint64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = littleEndian.Uint64(buf[:])
		return nil

	case *hash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err

	case *Uint32Time:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = Uint32Time(time.Unix(int64(littleEndian.Uint32(buf[:])), 0))
		return nil
	}

	return fmt.Errorf("unsupported element type %T", element)
}

// WriteElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		_, err := w.Write([]byte{e})
		return err

	case uint32:
		var buf [4]byte
		littleEndian.PutUint32(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case uint64:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case *hash.Hash:
		_, err := w.Write(e[:])
		return err
	}

	return fmt.Errorf("unsupported element type %T", element)
}

// Uint32Time represents a unix timestamp encoded with a uint32.  It is used as
// a way to signal the readElement function how to decode a timestamp into a Go
// time.Time since it is otherwise ambiguous.
type Uint32Time time.Time

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64.  The encoding matches the bitcoin wire compact size scheme.
func ReadVarInt(r io.Reader) (uint64, error) {
	var discriminant uint8
	if err := readElement(r, &discriminant); err != nil {
		return 0, err
	}

	var rv uint64
	switch discriminant {
	case 0xff:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return 0, err
		}
		rv = v

		// The encoding is not canonical if the value could have been
		// encoded using fewer bytes.
		if rv < 0x100000000 {
			return 0, fmt.Errorf("non-canonical varint %x", rv)
		}

	case 0xfe:
		var v uint32
		if err := readElement(r, &v); err != nil {
			return 0, err
		}
		rv = uint64(v)
		if rv < 0x10000 {
			return 0, fmt.Errorf("non-canonical varint %x", rv)
		}

	case 0xfd:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		rv = uint64(littleEndian.Uint16(buf[:]))
		if rv < 0xfd {
			return 0, fmt.Errorf("non-canonical varint %x", rv)
		}

	default:
		rv = uint64(discriminant)
	}

	return rv, nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, val uint64) error {
	if val < 0xfd {
		return writeElement(w, uint8(val))
	}

	if val <= 0xffff {
		var buf [3]byte
		buf[0] = 0xfd
		littleEndian.PutUint16(buf[1:], uint16(val))
		_, err := w.Write(buf[:])
		return err
	}

	if val <= 0xffffffff {
		if err := writeElement(w, uint8(0xfe)); err != nil {
			return err
		}
		return writeElement(w, uint32(val))
	}

	if err := writeElement(w, uint8(0xff)); err != nil {
		return err
	}
	return writeElement(w, val)
}

// ReadVarBytes reads a variable length byte array.  A byte array is encoded
// as a varint containing the length of the array followed by the bytes
// themselves.  An error is returned if the length is greater than the passed
// maxAllowed parameter which helps protect against memory exhaustion attacks
// and forced panics through malformed messages.
func ReadVarBytes(r io.Reader, maxAllowed uint32, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	if count > uint64(maxAllowed) {
		return nil, fmt.Errorf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarBytes serializes a variable length byte array to w as a varint
// followed by the bytes themselves.
func WriteVarBytes(w io.Writer, bytes []byte) error {
	if err := WriteVarInt(w, uint64(len(bytes))); err != nil {
		return err
	}
	_, err := w.Write(bytes)
	return err
}
