package sample

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Kind is the shape of a node in a raw PCM sample tree.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNull
	KindRecord
	KindSequence
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindRecord:
		return "record"
	case KindSequence:
		return "sequence"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one node of a schema-flexible PCM document. The zero Value is absent,
// so lookups through missing keys never need nil checks.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	rec  map[string]Value
	seq  []Value
}

// Parse decodes a JSON document into a Value tree.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode sample json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("decode sample json: trailing data after document")
	}
	return FromAny(raw)
}

// MustParse is Parse for fixtures; it panics on malformed input.
func MustParse(data string) Value {
	v, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return v
}

// FromAny converts a decoded encoding/json value (maps, slices, json.Number,
// float64, string, bool, nil) into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{kind: KindNull}, nil
	case bool:
		return Value{kind: KindBool, b: t}, nil
	case string:
		return Value{kind: KindString, str: t}, nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case map[string]any:
		rec := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			rec[k] = v
		}
		return Value{kind: KindRecord, rec: rec}, nil
	case []any:
		seq := make([]Value, 0, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			seq = append(seq, v)
		}
		return Value{kind: KindSequence, seq: seq}, nil
	default:
		return Value{}, fmt.Errorf("unsupported json value of type %T", raw)
	}
}

// Number builds a numeric leaf.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Record builds a record node from already typed children.
func Record(fields map[string]Value) Value {
	rec := make(map[string]Value, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return Value{kind: KindRecord, rec: rec}
}

// Sequence builds a sequence node.
func Sequence(items ...Value) Value {
	return Value{kind: KindSequence, seq: append([]Value(nil), items...)}
}

// Numbers builds a sequence of numeric leaves.
func Numbers(fs ...float64) Value {
	seq := make([]Value, 0, len(fs))
	for _, f := range fs {
		seq = append(seq, Number(f))
	}
	return Value{kind: KindSequence, seq: seq}
}

func (v Value) Kind() Kind { return v.kind }

// Exists reports whether the node is present. An explicit JSON null counts as
// absent, matching how a missing subtree is treated by every consumer.
func (v Value) Exists() bool { return v.kind != KindAbsent && v.kind != KindNull }

func (v Value) IsRecord() bool { return v.kind == KindRecord }

func (v Value) IsSequence() bool { return v.kind == KindSequence }

// Get returns the child stored under key, or an absent Value when v is not a
// record or has no such key.
func (v Value) Get(key string) Value {
	if v.kind != KindRecord {
		return Value{}
	}
	return v.rec[key]
}

// Path walks nested records.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
		if cur.kind == KindAbsent {
			return cur
		}
	}
	return cur
}

// Index returns the i-th item of a sequence, or absent.
func (v Value) Index(i int) Value {
	if v.kind != KindSequence || i < 0 || i >= len(v.seq) {
		return Value{}
	}
	return v.seq[i]
}

// Len is the number of items of a sequence or fields of a record.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindRecord:
		return len(v.rec)
	default:
		return 0
	}
}

// Items returns the items of a sequence; nil for any other shape.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Records returns only the record items of a sequence. PCM adapter lists mix
// records with bare values on some firmware levels.
func (v Value) Records() []Value {
	if v.kind != KindSequence {
		return nil
	}
	out := make([]Value, 0, len(v.seq))
	for _, item := range v.seq {
		if item.kind == KindRecord {
			out = append(out, item)
		}
	}
	return out
}

// Keys returns the record's field names in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindRecord {
		return nil
	}
	keys := make([]string, 0, len(v.rec))
	for k := range v.rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns the record's children ordered by key.
func (v Value) Fields() []Value {
	keys := v.Keys()
	out := make([]Value, 0, len(keys))
	for _, k := range keys {
		out = append(out, v.rec[k])
	}
	return out
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Sum adds the numeric items of a sequence in order. Non-numeric items are
// skipped and any other shape sums to zero.
func (v Value) Sum() float64 {
	if v.kind != KindSequence {
		return 0
	}
	var total float64
	for _, item := range v.seq {
		if item.kind == KindNumber {
			total += item.num
		}
	}
	return total
}

// Any converts the tree back into plain encoding/json values.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindRecord:
		out := make(map[string]any, len(v.rec))
		for k, item := range v.rec {
			out[k] = item.Any()
		}
		return out
	case KindSequence:
		out := make([]any, 0, len(v.seq))
		for _, item := range v.seq {
			out = append(out, item.Any())
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
