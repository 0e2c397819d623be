package flowstore

// position locates a value blob inside the database file
type position struct {
	offset uint64
	size   uint64
}

type entry struct {
	key   PK
	pos   position
	value []byte
}

func newEntry(key string, value []byte) *entry {
	return &entry{key: newPK(key), value: value}
}

func keyEntry(key string) *entry {
	return &entry{key: newPK(key)}
}

type write struct {
	key   string
	value []byte
}
