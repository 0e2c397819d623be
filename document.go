package flowstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrJsonCouldNotBeUnmarshalled = errors.New("json contents could not be unmarshalled, probably is invalid")
var ErrJsonPathInvalid = errors.New("json path is invalid")

type Document struct {
	key   string
	value []byte
}

func newDocument(key string, v []byte) *Document {
	cp := make([]byte, len(v))
	copy(cp, v)
	return &Document{key: key, value: cp}
}

func (d *Document) Key() string {
	return d.key
}

func (d *Document) Value() []byte {
	return d.value
}

func (d *Document) Unmarshal(dest interface{}) error {
	if err := json.Unmarshal(d.value, dest); err != nil {
		return errors.Wrapf(ErrJsonCouldNotBeUnmarshalled, "key %s: %s", d.key, err.Error())
	}

	return nil
}

// Int resolves a gjson path, e.g. "apps.#", to an integer
func (d *Document) Int(path string) (int, error) {
	get := gjson.GetBytes(d.value, path)
	if !get.Exists() {
		return 0, errors.Wrapf(ErrJsonPathInvalid, "%s", path)
	}

	return int(get.Int()), nil
}

func (d *Document) IntOrDefault(path string, def int) int {
	if v, err := d.Int(path); err == nil {
		return v
	}
	return def
}
