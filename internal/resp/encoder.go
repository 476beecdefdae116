package resp

import (
	"strconv"
)

// Encode serializes f to its wire form. NullBulkString serializes as
// "$-1\r\n". Snapshot serializes as "$<len>\r\n<bytes>" with no
// trailing terminator — the one deliberate aliasing hazard documented
// in spec §4.2: a Snapshot whose payload is <=5 bytes or does not start
// with the magic would decode back as a BulkString, but Snapshot is
// only ever produced by the leader in the PSYNC reply position, so the
// hazard never surfaces in practice.
func Encode(f Frame) []byte {
	buf := make([]byte, 0, 32)
	return appendFrame(buf, f)
}

func appendFrame(buf []byte, f Frame) []byte {
	switch f.Kind {
	case SimpleString:
		buf = append(buf, '+')
		buf = append(buf, f.Str...)
		buf = append(buf, '\r', '\n')
	case BulkString:
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(f.Str)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, f.Str...)
		buf = append(buf, '\r', '\n')
	case NullBulkString:
		buf = append(buf, "$-1\r\n"...)
	case Integer:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, f.Int, 10)
		buf = append(buf, '\r', '\n')
	case Snapshot:
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(f.Str)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, f.Str...)
	case Array:
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(f.Items)), 10)
		buf = append(buf, '\r', '\n')
		for _, item := range f.Items {
			buf = appendFrame(buf, item)
		}
	}
	return buf
}
