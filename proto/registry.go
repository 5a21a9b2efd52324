package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Variant describes how to decode one payload type
type Variant struct {
	typ      string
	required []string
	decode   func(raw []byte) (Payload, error)
}

// Type returns the variant's type tag
func (v Variant) Type() string {
	return v.typ
}

// VariantOf describes the payload type T. T should be a struct value type;
// every field whose json tag lacks omitempty must be present on the wire.
func VariantOf[T Payload]() Variant {
	var zero T
	return Variant{
		typ:      zero.Type(),
		required: requiredFields(reflect.TypeOf(zero)),
		decode: func(raw []byte) (Payload, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// requiredFields lists the json keys of t's fields that are not omitempty
func requiredFields(t reflect.Type) []string {
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}

		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if strings.Contains(opts, "omitempty") {
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

// Registry maps type tags to payload variants. It is immutable once built
// and safe for concurrent use.
type Registry struct {
	variants map[string]Variant
}

// NewRegistry creates a registry of the given variants
func NewRegistry(variants ...Variant) *Registry {
	r := &Registry{variants: make(map[string]Variant, len(variants))}
	for _, v := range variants {
		r.variants[v.typ] = v
	}
	return r
}

// With returns a new registry holding r's variants plus the given ones
func (r *Registry) With(variants ...Variant) *Registry {
	all := make([]Variant, 0, len(r.variants)+len(variants))
	for _, v := range r.variants {
		all = append(all, v)
	}
	return NewRegistry(append(all, variants...)...)
}

// Has reports whether typ is registered
func (r *Registry) Has(typ string) bool {
	_, ok := r.variants[typ]
	return ok
}

// Types returns the registered type tags in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.variants))
	for typ := range r.variants {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Decode parses one line into a Message. Malformed JSON, a missing or
// unknown type tag and absent required fields are all errors.
func (r *Registry) Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := &Message{}
	for key, dst := range map[string]*string{"src": &msg.Src, "dest": &msg.Dest} {
		raw, ok := envelope[key]
		if !ok {
			return nil, fmt.Errorf("%w: envelope %q", ErrMissingField, key)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("%w: envelope %q: %v", ErrMalformed, key, err)
		}
	}

	rawBody, ok := envelope["body"]
	if !ok {
		return nil, fmt.Errorf("%w: envelope \"body\"", ErrMissingField)
	}

	body, err := r.decodeBody(rawBody)
	if err != nil {
		return nil, err
	}
	msg.Body = body

	return msg, nil
}

func (r *Registry) decodeBody(raw json.RawMessage) (Body, error) {
	var (
		body   Body
		err    error
		fields map[string]json.RawMessage
	)
	if err = json.Unmarshal(raw, &fields); err != nil {
		return body, fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	if fields == nil {
		return body, fmt.Errorf("%w: body is null", ErrMalformed)
	}

	rawType, ok := fields[keyType]
	if !ok {
		return body, fmt.Errorf("%w: body %q", ErrMissingField, keyType)
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return body, fmt.Errorf("%w: body %q: %v", ErrMalformed, keyType, err)
	}

	variant, ok := r.variants[typ]
	if !ok {
		return body, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	if body.MsgID, err = decodeID(fields, keyMsgID); err != nil {
		return body, err
	}
	if body.InReplyTo, err = decodeID(fields, keyInReplyTo); err != nil {
		return body, err
	}

	for _, key := range variant.required {
		if _, ok := fields[key]; !ok {
			return body, fmt.Errorf("%w: %s %q", ErrMissingField, typ, key)
		}
	}

	payload, err := variant.decode(raw)
	if err != nil {
		return body, fmt.Errorf("%w: %s payload: %v", ErrMalformed, typ, err)
	}
	body.Payload = payload

	return body, nil
}

// decodeID reads an optional id; absent and null both mean "no id"
func decodeID(fields map[string]json.RawMessage, key string) (*uint64, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}

	var id *uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("%w: body %q: %v", ErrMalformed, key, err)
	}
	return id, nil
}
