package plugin

import (
	"bytes"
	"encoding/json"
)

// Changes lists what Ensure did, by plugin id.
type Changes struct {
	Added     []string `json:"added,omitempty"`
	Replaced  []string `json:"replaced,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
	// Dropped counts later entries removed because they repeated a desired id.
	Dropped int `json:"dropped,omitempty"`
}

// Empty reports whether no entry was added, replaced or dropped.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Replaced) == 0 && c.Dropped == 0
}

// Ensure returns a copy of doc whose plugins list contains every desired
// descriptor. An entry with a desired id is replaced in place by the
// descriptor verbatim; a desired id with no entry is appended. Later
// entries repeating a desired id are dropped. Entries that are not objects
// or carry no string id are kept as they are. A missing or non-array
// plugins member becomes an empty list first. doc is not modified.
func Ensure(desired []Descriptor, doc *Document) (*Document, Changes) {
	out := doc.Clone()
	entries, ok := out.Plugins()
	if !ok {
		entries = []json.RawMessage{}
	}

	var ch Changes
	for _, d := range desired {
		// A Descriptor holds only strings; marshal cannot fail.
		encoded, _ := marshal(d)

		idx := -1
		kept := entries[:0:0]
		for _, e := range entries {
			if id, ok := entryID(e); ok && id == d.ID {
				if idx >= 0 {
					ch.Dropped++
					continue
				}
				idx = len(kept)
			}
			kept = append(kept, e)
		}
		entries = kept

		switch {
		case idx < 0:
			entries = append(entries, json.RawMessage(encoded))
			ch.Added = append(ch.Added, d.ID)
		case sameJSON(entries[idx], encoded):
			entries[idx] = json.RawMessage(encoded)
			ch.Unchanged = append(ch.Unchanged, d.ID)
		default:
			entries[idx] = json.RawMessage(encoded)
			ch.Replaced = append(ch.Replaced, d.ID)
		}
	}

	out.Set(PluginsKey, encodeEntries(entries))
	return out, ch
}

func entryID(raw json.RawMessage) (string, bool) {
	if !isObject(raw) {
		return "", false
	}
	var probe struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == nil {
		return "", false
	}
	return *probe.ID, true
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func encodeEntries(entries []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
