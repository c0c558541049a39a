package shape

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sample() Shape {
	return RecordOf(
		Req("id", Of("UUID")),
		Req("name", Str()),
		Opt("score", Num()),
		Opt("tags", ListOf(Str())),
		Req("items", ListOf(RecordOf(Req("n", Integer()), Opt("ok", Boolean())))),
		Opt("payload", Poly("T")),
		Opt("any", Polymorphic{}),
	)
}

func TestMarshalCanonical(t *testing.T) {
	b, err := Marshal(RecordOf(Req("a", Str()), Opt("b", ListOf(Num()))))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"kind":"record","fields":[{"name":"a","shape":{"kind":"scalar","type":"String"}},{"name":"b","optional":true,"shape":{"kind":"container","elem":{"kind":"scalar","type":"Number"}}}]}`
	if string(b) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", b, want)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	s := sample()
	b, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	cases := map[string]string{
		"bad json":      `{"kind":`,
		"unknown kind":  `{"kind":"tuple"}`,
		"missing elem":  `{"kind":"container"}`,
		"missing shape": `{"kind":"record","fields":[{"name":"a"}]}`,
		"duplicate":     `{"kind":"record","fields":[{"name":"a","shape":{"kind":"scalar","type":"Int"}},{"name":"a","shape":{"kind":"scalar","type":"Int"}}]}`,
		"empty type":    `{"kind":"scalar"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(in)); err == nil {
				t.Fatalf("expected error for %s", in)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(sample())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	again, _ := Fingerprint(sample())
	if a != again || len(a) != 64 {
		t.Fatalf("fingerprint not stable: %s %s", a, again)
	}
	reordered, _ := Fingerprint(RecordOf(Opt("b", Num()), Req("a", Str())))
	original, _ := Fingerprint(RecordOf(Req("a", Str()), Opt("b", Num())))
	if reordered == original {
		t.Fatalf("field order must change the fingerprint")
	}
	if _, err := Fingerprint(Container{}); err == nil {
		t.Fatalf("expected error for invalid descriptor")
	}
}

func TestJSONSchemaRoundTrip(t *testing.T) {
	s := sample()
	schema, err := ToJSONSchema(s)
	if err != nil {
		t.Fatalf("to json schema: %v", err)
	}
	b, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	for _, frag := range []string{`"type":"object"`, `"required":["id","name","items"]`, `"format":"UUID"`, `"$comment":"slot:T"`, `"type":"integer"`} {
		if !strings.Contains(string(b), frag) {
			t.Fatalf("schema missing %s:\n%s", frag, b)
		}
	}
	got, err := ParseJSONSchema(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJSONSchema(t *testing.T) {
	got, err := ParseJSONSchema([]byte(`{
		"type": "object",
		"properties": {
			"a": {"type": "string"},
			"b": {"type": "array"},
			"c": {}
		},
		"required": ["a"]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := RecordOf(Req("a", Str()), Opt("b", ListOf(Polymorphic{})), Opt("c", Polymorphic{}))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected descriptor (-want +got):\n%s", diff)
	}

	for _, bad := range []string{
		`{"$ref": "#/$defs/x"}`,
		`{"anyOf": [{"type": "string"}]}`,
		`{"type": "object", "required": ["missing"]}`,
		`{"type": "tuple"}`,
	} {
		if _, err := ParseJSONSchema([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
