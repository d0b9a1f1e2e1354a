package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// ErrMalformedPayload marks bodies that could not be decoded at all.
var ErrMalformedPayload = errors.New("intake: malformed payload")

const maxJSONDepth = 32

// Field is a single key/value pair of a decoded object.
type Field struct {
	Key   string
	Value any
}

// Object is a decoded JSON object or form body. Fields keep document order,
// which is the iteration order the normalizer relies on for last-write-wins.
type Object []Field

// Get returns the value of the last field named key.
func (o Object) Get(key string) (any, bool) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].Key == key {
			return o[i].Value, true
		}
	}
	return nil, false
}

// Decode turns a raw webhook body into a generic value according to its
// content type. JSON yields Object, []any, string, json.Number, bool or nil;
// form bodies yield an Object of strings. An unknown or missing content type
// is sniffed: bodies starting with '{' or '[' are JSON, anything else is
// treated as form encoding.
func Decode(contentType string, body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Object{}, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return DecodeJSON(body)
	case mediaType == "application/x-www-form-urlencoded":
		return DecodeForm(body)
	case mediaType == "multipart/form-data":
		return DecodeMultipart(body, params["boundary"])
	}

	switch bytes.TrimSpace(body)[0] {
	case '{', '[':
		return DecodeJSON(body)
	default:
		return DecodeForm(body)
	}
}

// DecodeJSON decodes a JSON document preserving object key order.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	v, err := decodeValue(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after json document", ErrMalformedPayload)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, depth int) (any, error) {
	if depth > maxJSONDepth {
		return nil, errors.New("json nesting too deep")
	}

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := Object{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			val, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			obj = append(obj, Field{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// DecodeForm decodes an application/x-www-form-urlencoded body in field
// order. Repeated keys are kept; the normalizer resolves them.
func DecodeForm(body []byte) (Object, error) {
	obj := Object{}
	for _, pair := range strings.Split(string(body), "&") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if key == "" {
			continue
		}
		obj = append(obj, Field{Key: key, Value: value})
	}
	return obj, nil
}

// DecodeMultipart decodes the non-file parts of a multipart/form-data body in
// part order.
func DecodeMultipart(body []byte, boundary string) (Object, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart boundary missing", ErrMalformedPayload)
	}

	obj := Object{}
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return obj, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		name := part.FormName()
		if name == "" || part.FileName() != "" {
			_ = part.Close()
			continue
		}
		value, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		obj = append(obj, Field{Key: name, Value: string(value)})
	}
}
