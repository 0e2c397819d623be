package flowstore

import (
	"bytes"
	"strconv"
)

const setCommand = "set"

// respSerializer writes commands in a RESP like framing.
// pos is the absolute file offset the buffer will be written at,
// so positions of the serialized blobs can be handed back to the engine.
type respSerializer struct {
	buf bytes.Buffer
	pos int
}

// serializeSetCommand writes
//
//	*3\r\n+set\r\n$<klen>\r\n<key>\r\n$<vlen>\r\n<value>\r\n
//
// and returns the position of the value blob.
func (rs *respSerializer) serializeSetCommand(key string, value []byte) position {
	rs.pos += writeRespArray(3, &rs.buf)
	rs.pos += writeRespSimpleString([]byte(setCommand), &rs.buf)

	_, keyTotal := writeRespBlob([]byte(key), &rs.buf)
	rs.pos += keyTotal

	prefix, total := writeRespBlob(value, &rs.buf)
	pos := position{
		offset: uint64(rs.pos + prefix),
		size:   uint64(len(value)),
	}

	rs.pos += total
	return pos
}

func (rs *respSerializer) len() int {
	return rs.buf.Len()
}

func writeRespArray(segments int, buf *bytes.Buffer) int {
	buf.WriteByte('*')
	s := strconv.FormatInt(int64(segments), 10)
	buf.WriteString(s)
	buf.WriteString("\r\n")

	return 3 + len(s)
}

func writeRespSimpleString(b []byte, buf *bytes.Buffer) int {
	buf.WriteByte('+')
	buf.Write(b)
	buf.WriteString("\r\n")
	return 3 + len(b)
}

// writeRespBlob returns the size of the length prefix and the total number of bytes written
func writeRespBlob(blob []byte, buf *bytes.Buffer) (int, int) {
	buf.WriteByte('$')
	l := strconv.FormatInt(int64(len(blob)), 10)
	buf.WriteString(l)
	buf.WriteString("\r\n")
	buf.Write(blob)
	buf.WriteString("\r\n")

	prefix := 1 + len(l) + 2
	total := prefix + len(blob) + 2
	return prefix, total
}
