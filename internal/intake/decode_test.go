package intake_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/example/lead-intake-service/internal/intake"
)

func TestDecodeJSONPreservesKeyOrder(t *testing.T) {
	v, err := intake.DecodeJSON([]byte(`{"b":"1","a":{"y":"2","x":"3"},"c":["4",5]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, ok := v.(intake.Object)
	if !ok {
		t.Fatalf("expected Object, got %T", v)
	}

	var keys []string
	for _, f := range obj {
		keys = append(keys, f.Key)
	}
	if !reflect.DeepEqual(keys, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected key order %v", keys)
	}

	nested, _ := obj.Get("a")
	inner, ok := nested.(intake.Object)
	if !ok || len(inner) != 2 || inner[0].Key != "y" {
		t.Fatalf("unexpected nested object %#v", nested)
	}
}

func TestObjectGetReturnsLastOccurrence(t *testing.T) {
	obj := intake.Object{{Key: "k", Value: "first"}, {Key: "k", Value: "second"}}
	v, ok := obj.Get("k")
	if !ok || v != "second" {
		t.Fatalf("expected last occurrence, got %v", v)
	}
	if _, ok := obj.Get("missing"); ok {
		t.Fatalf("expected missing key to report false")
	}
}

func TestDecodeMalformedBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "truncated json", contentType: "application/json", body: `{"name":`},
		{name: "trailing data", contentType: "application/json", body: `{"name":"a"} {"b":"c"}`},
		{name: "sniffed json", contentType: "", body: `{"name" "a"}`},
		{name: "bad form escape", contentType: "application/x-www-form-urlencoded", body: "name=%zz"},
		{name: "multipart without boundary", contentType: "multipart/form-data", body: "--x\r\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := intake.Decode(tc.contentType, []byte(tc.body))
			if !errors.Is(err, intake.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestDecodeEmptyBodyIsEmptyObject(t *testing.T) {
	v, err := intake.Decode("application/json", []byte("  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, ok := v.(intake.Object)
	if !ok || len(obj) != 0 {
		t.Fatalf("expected empty Object, got %#v", v)
	}
}

func TestDecodeFormWithoutContentType(t *testing.T) {
	v, err := intake.Decode("text/plain", []byte("name=Bo&email=bo%40example.com&&=skipped"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := intake.Object{
		{Key: "name", Value: "Bo"},
		{Key: "email", Value: "bo@example.com"},
	}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("unexpected form decode: %#v", v)
	}
}

func TestDecodeJSONRejectsDeepNesting(t *testing.T) {
	body := make([]byte, 0, 80)
	for i := 0; i < 40; i++ {
		body = append(body, '[')
	}
	for i := 0; i < 40; i++ {
		body = append(body, ']')
	}
	if _, err := intake.DecodeJSON(body); !errors.Is(err, intake.ErrMalformedPayload) {
		t.Fatalf("expected nesting error, got %v", err)
	}
}
