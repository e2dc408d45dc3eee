package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Localized is an insertion-ordered map from language code to V.
// It serializes as a JSON object whose keys keep insertion order.
type Localized[V any] struct {
	keys   []string
	values map[string]V
}

// Set adds or replaces the value for lang. New keys are appended.
func (l *Localized[V]) Set(lang string, v V) {
	if l.values == nil {
		l.values = make(map[string]V)
	}
	if _, ok := l.values[lang]; !ok {
		l.keys = append(l.keys, lang)
	}
	l.values[lang] = v
}

func (l Localized[V]) Get(lang string) (V, bool) {
	v, ok := l.values[lang]
	return v, ok
}

// Keys returns the language codes in insertion order.
func (l Localized[V]) Keys() []string {
	return append([]string(nil), l.keys...)
}

func (l Localized[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range l.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(l.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *Localized[V]) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*l = Localized[V]{}
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("localized value must be a JSON object, got %s", res.Type)
	}
	out := Localized[V]{}
	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		var v V
		if err = json.Unmarshal([]byte(value.Raw), &v); err != nil {
			return false
		}
		out.Set(key.String(), v)
		return true
	})
	if err != nil {
		return err
	}
	*l = out
	return nil
}
