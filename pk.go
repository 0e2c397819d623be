package flowstore

import (
	"strings"
)

const pkSeparator = ":"

// PK is a primary key split into `:` separated segments.
// Keys are ordered segment by segment, a key that is a segment-prefix of
// another one goes first.
type PK struct {
	key      string
	segments []string
}

func newPK(k string) PK {
	return PK{
		key:      k,
		segments: strings.Split(k, pkSeparator),
	}
}

func (pk *PK) Equal(other *PK) bool {
	return pk.key == other.key
}

func (pk *PK) String() string {
	return pk.key
}

func (pk *PK) Bytes() []byte {
	return []byte(pk.key)
}

func (pk *PK) HasPrefix(prefix string) bool {
	return strings.HasPrefix(pk.key, prefix)
}

func (pk *PK) Less(other PK) bool {
	l := smallestSegmentLen(pk.segments, other.segments)

	for i := 0; i < l; i++ {
		if pk.segments[i] != other.segments[i] {
			return pk.segments[i] < other.segments[i]
		}
	}

	return len(pk.segments) < len(other.segments)
}

func byPrimaryKeys(a, b interface{}) bool {
	i1, i2 := a.(*entry), b.(*entry)
	return i1.key.Less(i2.key)
}

func smallestSegmentLen(a, b []string) int {
	if len(a) > len(b) {
		return len(b)
	}

	return len(a)
}
