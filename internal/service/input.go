package service

import (
	"bytes"
	"encoding/json"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/shopspring/decimal"
)

// maxIntegral bounds integers coerced from input; larger values are reported as out of range.
var maxIntegral = decimal.NewFromInt(1 << 40)

// Field is a raw JSON value sent by a client. A missing or null field is not present.
// Accessors coerce it leniently: numbers may arrive as numeric strings.
type Field struct {
	raw json.RawMessage
}

// NewField builds a present Field from a Go value, as if v had been decoded from JSON.
func NewField(v any) Field {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return Field{}
	}
	return Field{raw: raw}
}

func (f *Field) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	f.raw = append(f.raw[:0], b...)
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	if !f.Present() {
		return []byte("null"), nil
	}
	return f.raw, nil
}

// Present reports whether the client sent a non-null value.
func (f Field) Present() bool {
	return len(f.raw) > 0
}

// String returns the trimmed string value.
func (f Field) String(name string) (string, error) {
	var s string
	if err := json.Unmarshal(f.raw, &s); err != nil {
		return "", serrors.NewValidationError(name, "must be a string")
	}
	return strings.TrimSpace(s), nil
}

// Decimal accepts a JSON number or a numeric string.
func (f Field) Decimal(name string) (decimal.Decimal, error) {
	text := string(bytes.TrimSpace(f.raw))
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, serrors.NewValidationError(name, "must be a finite number")
	}
	return d, nil
}

// Int accepts a JSON number or numeric string holding an integral value.
func (f Field) Int(name string) (int, error) {
	d, err := f.Decimal(name)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, serrors.NewValidationError(name, "must be an integer")
	}
	if d.Abs().GreaterThan(maxIntegral) {
		return 0, serrors.NewValidationError(name, "is out of range")
	}
	return int(d.IntPart()), nil
}

// Bool accepts true/false or their string spellings.
func (f Field) Bool(name string) (bool, error) {
	var b bool
	if err := json.Unmarshal(f.raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, serrors.NewValidationError(name, "must be a boolean")
}

// Strings accepts an array of strings or a single string. Entries are trimmed.
func (f Field) Strings(name string) ([]string, error) {
	var list []string
	if err := json.Unmarshal(f.raw, &list); err != nil {
		var single string
		if err := json.Unmarshal(f.raw, &single); err != nil {
			return nil, serrors.NewValidationError(name, "must be a list of strings")
		}
		list = []string{single}
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.TrimSpace(s)
	}
	return out, nil
}

// ProductInput is a product create or update payload. Any id in it is ignored.
type ProductInput struct {
	ID          Field `json:"id"`
	Title       Field `json:"title"`
	Description Field `json:"description"`
	Code        Field `json:"code"`
	Price       Field `json:"price"`
	Stock       Field `json:"stock"`
	Status      Field `json:"status"`
	Category    Field `json:"category"`
	Thumbnails  Field `json:"thumbnails"`
}

// LineInput is one element of a wholesale cart replacement.
type LineInput struct {
	Product  Field `json:"product"`
	Quantity Field `json:"quantity"`
}

// productRef reads a product id sent either as a string or as a number.
func productRef(f Field, name string) (string, error) {
	if !f.Present() {
		return "", serrors.NewValidationError(name, "is required")
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", serrors.NewValidationError(name, "is required")
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(f.raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	return "", serrors.NewValidationError(name, "must be a product id")
}

// ProductRef exposes productRef for transports that receive bare ids, such as socket events.
func ProductRef(f Field) (string, error) {
	return productRef(f, "id")
}
