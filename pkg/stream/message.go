package stream

import (
	"bytes"
	"encoding/json"
)

// Kind tags what a Message carries.
type Kind string

const (
	KindItem     Kind = "item"
	KindIncludes Kind = "includes"
	KindMeta     Kind = "meta"
	KindPage     Kind = "page"
)

// Message is one emitted value. It serializes as its Data alone, so a
// stream of messages writes out as plain NDJSON records.
type Message struct {
	Kind Kind
	Data map[string]interface{}
}

// MarshalJSON writes Data with HTML characters left as is; tweet text is
// not markup.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Data == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Data); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// IsItem reports whether the message counts toward the item cap.
func (m Message) IsItem() bool {
	return m.Kind == KindItem
}
