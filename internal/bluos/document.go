package bluos

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// document is a flattened player response: the root element's attributes and
// the text of its simple child elements, keyed by name. Players put some
// fields in attributes (etag, SyncStatus volume) and most in child elements.
type document struct {
	root   string
	fields map[string]string
}

func decodeDocument(data []byte) (*document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	doc := &document{fields: make(map[string]string)}
	depth := 0
	var child string
	var text strings.Builder
	nested := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewParseError("malformed XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				doc.root = t.Name.Local
				for _, attr := range t.Attr {
					doc.set(attr.Name.Local, attr.Value)
				}
			case 2:
				child = t.Name.Local
				text.Reset()
				nested = false
			default:
				nested = true
			}
		case xml.CharData:
			if depth == 2 && !nested {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 && !nested {
				doc.set(child, strings.TrimSpace(text.String()))
			}
			depth--
		}
	}

	if doc.root == "" {
		return nil, NewParseError("empty document", nil)
	}
	return doc, nil
}

// set keeps the first occurrence of a name; repeated elements are lists the
// state model does not use.
func (d *document) set(key, value string) {
	if _, ok := d.fields[key]; !ok {
		d.fields[key] = value
	}
}

// fieldReader pulls typed, validated values out of a document and collects
// every violation instead of stopping at the first one.
type fieldReader struct {
	doc  *document
	errs error
}

func (r *fieldReader) fail(format string, args ...any) {
	r.errs = multierr.Append(r.errs, fmt.Errorf(format, args...))
}

func (r *fieldReader) str(key string) string {
	return r.doc.fields[key]
}

func (r *fieldReader) required(key string) string {
	v, ok := r.doc.fields[key]
	if !ok {
		r.fail("%s: required", key)
	}
	return v
}

// number returns nil when the field is absent. Bounds are inclusive.
func (r *fieldReader) number(key string, min, max float64) *float64 {
	raw, ok := r.doc.fields[key]
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		r.fail("%s: %q is not a number", key, raw)
		return nil
	}
	if n < min || n > max {
		r.fail("%s: %v out of range [%v, %v]", key, n, min, max)
		return nil
	}
	return &n
}

func (r *fieldReader) oneOf(key string, allowed ...string) string {
	raw, ok := r.doc.fields[key]
	if !ok {
		return ""
	}
	for _, a := range allowed {
		if raw == a {
			return raw
		}
	}
	r.fail("%s: %q not one of %s", key, raw, strings.Join(allowed, ", "))
	return ""
}

func (r *fieldReader) err(what string) error {
	if r.errs == nil {
		return nil
	}
	return &DeviceError{
		Type:    ErrTypeValidation,
		Message: fmt.Sprintf("invalid %s", what),
		Err:     r.errs,
	}
}
