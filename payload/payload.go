// Package payload turns the text embedded in a scanned QR code into a
// display record.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrParse is returned when decoded text is not a JSON object.
var ErrParse = errors.New("payload is not structured data")

// Well-known record keys. Any other key is kept but not rendered.
const (
	KeyName     = "name"
	KeyContact  = "contact"
	KeyDept     = "dept"
	KeyImageURL = "imageUrl"
)

// Record is the decoded key/value content of one scan.
type Record map[string]string

// Interpret parses raw QR text as a JSON object.
//
// String values are kept verbatim. Numbers and booleans keep their JSON
// literal text, nested objects and arrays are kept as compact JSON, and null
// values are dropped.
func Interpret(raw string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: top level is null", ErrParse)
	}
	// More reports false ahead of a stray ']' or '}', so read to EOF instead.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrParse)
	}

	rec := make(Record, len(doc))
	for key, val := range doc {
		s, ok, err := flatten(val)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrParse, key, err)
		}
		if ok {
			rec[key] = s
		}
	}
	return rec, nil
}

func flatten(val json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(val)
	if len(trimmed) == 0 {
		return "", false, errors.New("empty value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case 'n':
		return "", false, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	default:
		return string(trimmed), true, nil
	}
}

// Get returns the value for key, or "" when absent.
func (r Record) Get(key string) string {
	if r == nil {
		return ""
	}
	return r[key]
}

// Name returns the record's display name.
func (r Record) Name() string { return r.Get(KeyName) }

// Contact returns the raw contact value (phone number or email).
func (r Record) Contact() string { return r.Get(KeyContact) }

// Dept returns the department text.
func (r Record) Dept() string { return r.Get(KeyDept) }

// ImageURL returns the profile image source.
func (r Record) ImageURL() string { return r.Get(KeyImageURL) }

// IsEmail reports whether the contact value should be treated as an email
// address. Any contact containing "@" is an email, everything else a phone
// number.
func (r Record) IsEmail() bool {
	return strings.Contains(r.Contact(), "@")
}

// ContactHref returns a mailto: or tel: link for the contact value, or "" if
// the record has no contact.
func (r Record) ContactHref() string {
	c := r.Contact()
	if c == "" {
		return ""
	}
	if r.IsEmail() {
		return "mailto:" + c
	}
	return "tel:" + c
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
