package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With("component", "test")

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "POST", Path: "/shapes/a/coerce"})
	ctx = WithUserData(ctx, &UserData{UserID: "u1"})
	ctx = WithCoercionData(ctx, &CoercionData{ShapeName: "a", Strategy: "open", Fingerprint: "abc"})
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["component"] != "test" {
		t.Fatalf("With attrs lost: %v", rec)
	}
	req, _ := rec["req"].(map[string]any)
	if req["id"] != "r1" || req["method"] != "POST" {
		t.Fatalf("unexpected req group: %v", rec["req"])
	}
	if user, _ := rec["user"].(map[string]any); user["id"] != "u1" {
		t.Fatalf("unexpected user group: %v", rec["user"])
	}
	co, _ := rec["coerce"].(map[string]any)
	if co["shape"] != "a" || co["strategy"] != "open" || co["fingerprint"] != "abc" {
		t.Fatalf("unexpected coerce group: %v", rec["coerce"])
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, k := range []string{"req", "user", "coerce"} {
		if _, ok := rec[k]; ok {
			t.Fatalf("unexpected %s group", k)
		}
	}
}
