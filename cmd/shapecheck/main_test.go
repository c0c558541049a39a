package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/optshape/shape"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	checkFlags.strategy, checkFlags.all, checkFlags.strict, checkFlags.watch = "open", false, false, false
	schemaFlags.canonical = false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

var personShape = shape.RecordOf(
	shape.Req("name", shape.Str()),
	shape.Opt("nick", shape.Str()),
	shape.Req("tags", shape.ListOf(shape.Str())),
)

func personShapeFile(t *testing.T, dir string) string {
	t.Helper()
	b, err := shape.Marshal(personShape)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return writeTemp(t, dir, "person.json", string(b))
}

func TestCheck_OK(t *testing.T) {
	dir := t.TempDir()
	sp := personShapeFile(t, dir)
	in := writeTemp(t, dir, "in.yaml", "name: ada\ntags: [x, y]\nextra: true\n")

	out, err := execute(t, "check", "--shape", sp, "--input", in)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	var got any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := map[string]any{"name": "ada", "tags": []any{"x", "y"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestCheck_Mismatch(t *testing.T) {
	dir := t.TempDir()
	sp := personShapeFile(t, dir)
	in := writeTemp(t, dir, "in.json", `{"name":"ada","tags":"oops"}`)

	out, err := execute(t, "check", "--shape", sp, "--input", in)
	if !errors.Is(err, errMismatch) {
		t.Fatalf("expected errMismatch, got %v", err)
	}
	for _, frag := range []string{"at tags", "expected:", "actual:"} {
		if !strings.Contains(out, frag) {
			t.Fatalf("output missing %q:\n%s", frag, out)
		}
	}
}

func TestCheck_ClosedUnresolved(t *testing.T) {
	dir := t.TempDir()
	b, err := shape.Marshal(shape.RecordOf(shape.Req("v", shape.Poly("T"))))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sp := writeTemp(t, dir, "poly.json", string(b))
	in := writeTemp(t, dir, "in.json", `{"v":[]}`)

	out, err := execute(t, "check", "--shape", sp, "--input", in, "--strategy", "closed")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "unresolved T at v") {
		t.Fatalf("output missing unresolved binding:\n%s", out)
	}

	_, err = execute(t, "check", "--shape", sp, "--input", in, "--strategy", "closed", "--strict")
	if !errors.Is(err, errMismatch) {
		t.Fatalf("strict: expected errMismatch, got %v", err)
	}
}

func TestCheck_BadStrategy(t *testing.T) {
	dir := t.TempDir()
	sp := personShapeFile(t, dir)
	in := writeTemp(t, dir, "in.json", `{}`)
	if _, err := execute(t, "check", "--shape", sp, "--input", in, "--strategy", "fuzzy"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestSchema(t *testing.T) {
	dir := t.TempDir()
	sp := personShapeFile(t, dir)
	fp, err := shape.Fingerprint(personShape)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	out, err := execute(t, "schema", "--shape", sp)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, frag := range []string{`"type": "object"`, `"required"`, "fingerprint: " + fp} {
		if !strings.Contains(out, frag) {
			t.Fatalf("output missing %q:\n%s", frag, out)
		}
	}

	out, err = execute(t, "schema", "--shape", sp, "--canonical")
	if err != nil {
		t.Fatalf("schema --canonical: %v", err)
	}
	if !strings.Contains(out, `"kind"`) {
		t.Fatalf("canonical output missing kind:\n%s", out)
	}
}

func TestServeConfig(t *testing.T) {
	t.Setenv("SHAPECHECK_ADDR", ":9999")
	t.Setenv("SHAPECHECK_JWT_KEY", "secret")
	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Store != "memory" || cfg.Strategy != "open" || cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	st, err := cfg.openStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = st.Close()

	a, err := cfg.authenticator(context.Background())
	if err != nil || a == nil {
		t.Fatalf("authenticator: %v %v", a, err)
	}

	cfg.Store = "etcd"
	if _, err := cfg.openStore(); err == nil {
		t.Fatalf("expected error for unknown store")
	}
	cfg.JWTKey = ""
	if a, _ := cfg.authenticator(context.Background()); a != nil {
		t.Fatalf("expected no authenticator without a key")
	}
}

func TestCheck_SameResultForJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	b, err := shape.Marshal(shape.RecordOf(
		shape.Req("name", shape.Str()),
		shape.Req("score", shape.Num()),
		shape.Opt("count", shape.Integer()),
	))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sp := writeTemp(t, dir, "scored.json", string(b))
	inputs := map[string]string{
		"in.json": `{"name":"ada","score":20,"count":3}`,
		"in.yaml": "name: ada\nscore: 20\ncount: 3\n",
	}

	results := map[string]any{}
	for name, content := range inputs {
		out, err := execute(t, "check", "--shape", sp, "--input", writeTemp(t, dir, name, content))
		if err != nil {
			t.Fatalf("%s: %v\n%s", name, err, out)
		}
		var got any
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("%s: output is not JSON: %v\n%s", name, err, out)
		}
		results[name] = got
	}
	want := map[string]any{"name": "ada", "score": 20.0, "count": 3.0}
	for name, got := range results {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: unexpected value (-want +got):\n%s", name, diff)
		}
	}
}

func TestServeConfig_JWKS(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	jwks, err := json.Marshal(map[string]any{"keys": []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}}})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := serveConfig{JWKSURL: srv.URL, JWTIssuer: "https://issuer.test", JWTAudience: "shapecheck, other", JWTScopes: "shapes:write"}
	if got := cfg.jwksConfig(cfg.JWTIssuer, nil).Audiences; len(got) != 2 || got[0] != "shapecheck" || got[1] != "other" {
		t.Fatalf("unexpected audiences %q", got)
	}
	a, err := cfg.authenticator(ctx)
	if err != nil || a == nil {
		t.Fatalf("authenticator: %v %v", a, err)
	}

	cfg.JWTKey = "secret"
	if _, err := cfg.authenticator(ctx); err == nil {
		t.Fatalf("expected error when several token sources are set")
	}

	cfg = serveConfig{JWKSURL: srv.URL}
	if _, err := cfg.authenticator(ctx); err == nil {
		t.Fatalf("expected error for jwks without issuer and audience")
	}
}
