package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned by Parse when the top-level JSON value is not an
// object.
var ErrNotObject = errors.New("plugin: top-level value is not an object")

// PluginsKey is the member holding the descriptor list.
const PluginsKey = "plugins"

type member struct {
	key   string
	value json.RawMessage
}

// Document is a JSON object whose members keep their original order and
// raw values, so a round trip only changes what Ensure touches.
type Document struct {
	members []member
}

// Parse reads a JSON object. A key repeated at the top level keeps its
// first position and its last value.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("plugin: parse: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	doc := &Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("plugin: parse: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("plugin: parse: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("plugin: parse %q: %w", key, err)
		}
		doc.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("plugin: parse: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("plugin: parse: trailing data after object")
	}
	return doc, nil
}

// Keys returns the member names in order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.members))
	for i, m := range d.members {
		keys[i] = m.key
	}
	return keys
}

// Get returns the raw value of key.
func (d *Document) Get(key string) (json.RawMessage, bool) {
	for _, m := range d.members {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

// Set replaces the value of key in place or appends a new member.
func (d *Document) Set(key string, value json.RawMessage) {
	for i := range d.members {
		if d.members[i].key == key {
			d.members[i].value = value
			return
		}
	}
	d.members = append(d.members, member{key: key, value: value})
}

// Clone returns a copy sharing no mutable state with d.
func (d *Document) Clone() *Document {
	out := &Document{members: make([]member, len(d.members))}
	for i, m := range d.members {
		out.members[i] = member{key: m.key, value: append(json.RawMessage(nil), m.value...)}
	}
	return out
}

// Plugins returns the raw entries of the plugins member. ok is false when
// the member is missing or not an array.
func (d *Document) Plugins() (entries []json.RawMessage, ok bool) {
	raw, found := d.Get(PluginsKey)
	if !found || !isArray(raw) {
		return nil, false
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// Encode renders the document with two-space indentation, no HTML escaping
// and a trailing newline. Two documents with equal Encode output are
// treated as unchanged.
func (d *Document) Encode() ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, m := range d.members {
		if i > 0 {
			compact.WriteByte(',')
		}
		k, err := marshal(m.key)
		if err != nil {
			return nil, err
		}
		compact.Write(k)
		compact.WriteByte(':')
		compact.Write(m.value)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("plugin: encode: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// marshal is json.Marshal without HTML escaping and without the trailing
// newline json.Encoder adds.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plugin: marshal: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func isArray(raw json.RawMessage) bool  { return firstByte(raw) == '[' }
func isObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }
