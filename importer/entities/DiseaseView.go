package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named value of a DiseaseView.
type Field struct {
	Name  string
	Value any
}

// DiseaseView is the flattened answer to "what does treating this disease
// involve and cost". Its field set depends on how many drugs and treatment
// items resolved, so it is an ordered list of fields rather than a struct.
// It marshals to a JSON object with keys in insertion order.
type DiseaseView struct {
	fields []Field
	index  map[string]int
}

// NewDiseaseView returns an empty view with room for n fields.
func NewDiseaseView(n int) *DiseaseView {
	return &DiseaseView{
		fields: make([]Field, 0, n),
		index:  make(map[string]int, n),
	}
}

// Set adds a field, or replaces the value of an existing one in place.
func (v *DiseaseView) Set(name string, value any) {
	if i, ok := v.index[name]; ok {
		v.fields[i].Value = value
		return
	}
	v.index[name] = len(v.fields)
	v.fields = append(v.fields, Field{Name: name, Value: value})
}

// SetIndexed adds a field named prefix followed by its 1-based position.
func (v *DiseaseView) SetIndexed(prefix string, position int, value any) {
	v.Set(fmt.Sprintf("%s%d", prefix, position), value)
}

// Get returns the value of a field.
func (v *DiseaseView) Get(name string) (any, bool) {
	i, ok := v.index[name]
	if !ok {
		return nil, false
	}
	return v.fields[i].Value, true
}

// Len returns the number of fields.
func (v *DiseaseView) Len() int {
	return len(v.fields)
}

// Fields returns a copy of the fields in order.
func (v *DiseaseView) Fields() []Field {
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

// MarshalJSON writes the fields as one JSON object, keeping their order.
func (v *DiseaseView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range v.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
