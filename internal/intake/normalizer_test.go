package intake_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/models"
)

func decode(t *testing.T, contentType, body string) any {
	t.Helper()
	v, err := intake.Decode(contentType, []byte(body))
	if err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return v
}

func TestNormalizeShapesProduceIdenticalFields(t *testing.T) {
	want := models.NormalizedFields{
		"name":    "Ann Lee",
		"email":   "ann@example.com",
		"message": "Hello there",
	}

	tests := []struct {
		name        string
		contentType string
		body        string
		shape       intake.Shape
	}{
		{
			name:        "array of fields",
			contentType: "application/json",
			body:        `{"data":[{"name":"Name","value":"Ann Lee"},{"name":"email","value":"ann@example.com"},{"name":"MESSAGE","value":"Hello there"}]}`,
			shape:       intake.ShapeArrayOfFields,
		},
		{
			name:        "flat object",
			contentType: "application/json",
			body:        `{"name":"Ann Lee","Email":"ann@example.com","message":"Hello there"}`,
			shape:       intake.ShapeFlatObject,
		},
		{
			name:        "payload wrapped",
			contentType: "application/json; charset=utf-8",
			body:        `{"payload":{"name":"Ann Lee","email":"ann@example.com","Message":"Hello there"},"site":"x"}`,
			shape:       intake.ShapeNestedPayload,
		},
		{
			name:        "form encoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "name=Ann+Lee&email=ann%40example.com&message=Hello%20there",
			shape:       intake.ShapeFlatObject,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, shape := intake.Normalize(decode(t, tc.contentType, tc.body))
			if shape != tc.shape {
				t.Fatalf("expected shape %s, got %s", tc.shape, shape)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("unexpected fields: got %v, want %v", got, want)
			}
		})
	}
}

func TestNormalizeCaseVariantsLastWriteWins(t *testing.T) {
	body := decode(t, "application/json", `{"email":"first@example.com","Email":"second@example.com"}`)
	got, _ := intake.Normalize(body)
	if got["email"] != "second@example.com" {
		t.Fatalf("expected later variant to win, got %q", got["email"])
	}

	body = decode(t, "application/json", `{"Email":"second@example.com","email":"first@example.com"}`)
	got, _ = intake.Normalize(body)
	if got["email"] != "first@example.com" {
		t.Fatalf("expected later variant to win, got %q", got["email"])
	}
}

func TestNormalizeArrayScenario(t *testing.T) {
	body := decode(t, "", `{"data":[{"name":"Email","value":"A@B.com"},{"name":"name","value":"Ann"}]}`)
	got, shape := intake.Normalize(body)
	if shape != intake.ShapeArrayOfFields {
		t.Fatalf("expected array shape, got %s", shape)
	}
	want := models.NormalizedFields{"email": "A@B.com", "name": "Ann"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected fields: got %v, want %v", got, want)
	}
}

func TestNormalizeFallsThroughOnUnexpectedContainers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.NormalizedFields
	}{
		{
			name: "data is an object",
			body: `{"data":{"email":"a@b.com"},"name":"Bo"}`,
			want: models.NormalizedFields{"name": "Bo"},
		},
		{
			name: "payload is a string",
			body: `{"payload":"oops","email":"a@b.com"}`,
			want: models.NormalizedFields{"payload": "oops", "email": "a@b.com"},
		},
		{
			name: "non string values skipped",
			body: `{"name":"Bo","budget":5000,"email":null,"timeline":["soon"],"name":true}`,
			want: models.NormalizedFields{"name": "Bo"},
		},
		{
			name: "malformed array entries skipped",
			body: `{"data":["x",{"value":"no name"},{"name":7,"value":"bad"},{"name":"Company","value":"Acme"}]}`,
			want: models.NormalizedFields{"company": "Acme"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, _ := intake.Normalize(decode(t, "application/json", tc.body))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("unexpected fields: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeNonMappingBodyIsEmpty(t *testing.T) {
	for _, body := range []string{`[]`, `"text"`, `42`, `null`} {
		got, shape := intake.Normalize(decode(t, "application/json", body))
		if len(got) != 0 {
			t.Fatalf("expected empty fields for %s, got %v", body, got)
		}
		if shape != intake.ShapeUnrecognised {
			t.Fatalf("expected unrecognised shape for %s, got %s", body, shape)
		}
	}

	got, _ := intake.Normalize(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected non-nil empty mapping for nil body, got %v", got)
	}
}

func TestNormalizePlainMapsUseSortedKeyOrder(t *testing.T) {
	got, shape := intake.Normalize(map[string]any{"email": "lower@example.com", "EMAIL": "upper@example.com"})
	if shape != intake.ShapeFlatObject {
		t.Fatalf("expected flat shape, got %s", shape)
	}
	// "EMAIL" sorts before "email", so the lowercase key is written last.
	if got["email"] != "lower@example.com" {
		t.Fatalf("expected sorted order tie-break, got %q", got["email"])
	}
}

func TestDecodeMultipartKeepsPartOrder(t *testing.T) {
	body := strings.Join([]string{
		"--XYZ",
		`Content-Disposition: form-data; name="name"`,
		"",
		"Ann",
		"--XYZ",
		`Content-Disposition: form-data; name="upload"; filename="cv.pdf"`,
		"Content-Type: application/pdf",
		"",
		"%PDF",
		"--XYZ",
		`Content-Disposition: form-data; name="Email"`,
		"",
		"ann@example.com",
		"--XYZ--",
		"",
	}, "\r\n")

	got, _ := intake.Normalize(decode(t, "multipart/form-data; boundary=XYZ", body))
	want := models.NormalizedFields{"name": "Ann", "email": "ann@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected fields: got %v, want %v", got, want)
	}
}
