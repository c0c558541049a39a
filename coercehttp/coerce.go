package coercehttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/ggoodman/optshape/coerce"
	"github.com/ggoodman/optshape/internal/logctx"
	"github.com/ggoodman/optshape/shape"
)

// coerceResponse is the body of a successful coercion.
type coerceResponse struct {
	Value       any              `json:"value"`
	Unresolved  []unresolvedJSON `json:"unresolved"`
	Fingerprint string           `json:"fingerprint,omitempty"`
}

type unresolvedJSON struct {
	Slot     string   `json:"slot"`
	Path     []string `json:"path"`
	Expected string   `json:"expected"`
	Bound    string   `json:"bound"`
}

type diagnosticJSON struct {
	Reason   string   `json:"reason"`
	Strategy string   `json:"strategy"`
	Path     []string `json:"path"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

func toResponse(res *coerce.Result, fp string) coerceResponse {
	out := coerceResponse{Value: coerce.Plain(res.Value), Unresolved: []unresolvedJSON{}, Fingerprint: fp}
	for _, u := range res.Unresolved {
		out.Unresolved = append(out.Unresolved, unresolvedJSON{
			Slot:     u.Slot,
			Path:     u.Path.Strings(),
			Expected: shapeString(u.Expected),
			Bound:    shapeString(u.Bound),
		})
	}
	return out
}

func shapeString(s shape.Shape) string {
	if s == nil {
		return ""
	}
	return s.String()
}

func diagnosticsOf(err error) []*coerce.Diagnostic {
	var ds coerce.Diagnostics
	if errors.As(err, &ds) {
		return ds
	}
	var d *coerce.Diagnostic
	if errors.As(err, &d) {
		return []*coerce.Diagnostic{d}
	}
	return nil
}

// engineFor builds the engine selected by the query string: strategy=open|closed,
// all=true for every mismatch, strict=true to reject unresolved bindings.
func (h *Handler) engineFor(r *http.Request) (*coerce.Engine, error) {
	q := r.URL.Query()
	strategy := h.strategy
	if v := q.Get("strategy"); v != "" {
		s, err := coerce.ParseStrategy(v)
		if err != nil {
			return nil, err
		}
		strategy = s
	}
	opts := []coerce.Option{coerce.WithLogger(h.log)}
	for _, flag := range []struct {
		name string
		opt  coerce.Option
	}{
		{"all", coerce.WithAllMismatches()},
		{"strict", coerce.WithStrictUnresolved()},
	} {
		v := q.Get(flag.name)
		if v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s parameter %q", flag.name, v)
		}
		if on {
			opts = append(opts, flag.opt)
		}
	}
	return coerce.New(strategy, h.registry, opts...), nil
}

// decodeBody reads a JSON body keeping numbers as json.Number so that Int
// and Number stay distinguishable.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (any, bool) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(r.Context(), "content_type.unsupported")
		return nil, false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.UseNumber()
	var in any
	if err := dec.Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(r.Context(), "json.decode.fail", slog.String("err", err.Error()))
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		writeJSONError(w, http.StatusBadRequest, "trailing data after JSON body")
		return nil, false
	}
	return in, true
}

func (h *Handler) handleCoerce(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	s, ok := h.loadShape(w, r, name)
	if !ok {
		return
	}
	e, err := h.engineFor(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	fp, _ := shape.Fingerprint(s)
	ctx := logctx.WithCoercionData(r.Context(), &logctx.CoercionData{
		ShapeName:   name,
		Strategy:    e.Strategy().String(),
		Fingerprint: fp,
	})

	in, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	res, err := e.Coerce(s, in)
	if err != nil {
		h.log.InfoContext(ctx, "coerce.fail", slog.String("err", err.Error()))
		h.writeCoerceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res, fp))
	h.log.InfoContext(ctx, "coerce.ok",
		slog.Int("unresolved", len(res.Unresolved)),
		slog.Duration("dur", time.Since(start)),
	)
}

// handleBatch coerces every element of a JSON array body in parallel.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	s, ok := h.loadShape(w, r, name)
	if !ok {
		return
	}
	e, err := h.engineFor(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	fp, _ := shape.Fingerprint(s)
	ctx := logctx.WithCoercionData(r.Context(), &logctx.CoercionData{
		ShapeName:   name,
		Strategy:    e.Strategy().String(),
		Fingerprint: fp,
	})

	in, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	inputs, isArray := in.([]any)
	if !isArray {
		writeJSONError(w, http.StatusBadRequest, "batch body must be a JSON array")
		return
	}

	results, err := coerce.All(ctx, e, s, inputs)
	if err != nil {
		h.log.InfoContext(ctx, "coerce.batch.fail", slog.String("err", err.Error()))
		h.writeCoerceError(w, r, err)
		return
	}
	out := make([]coerceResponse, len(results))
	for i, res := range results {
		out[i] = toResponse(res, "")
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprint": fp, "results": out})
	h.log.InfoContext(ctx, "coerce.batch.ok", slog.Int("count", len(results)), slog.Duration("dur", time.Since(start)))
}

// writeCoerceError answers 422 with the diagnostics, rendered as JSON or as
// plain text per Accept.
func (h *Handler) writeCoerceError(w http.ResponseWriter, r *http.Request, err error) {
	ds := diagnosticsOf(err)
	if ds == nil {
		if r.Context().Err() != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		h.log.ErrorContext(r.Context(), "coerce.error", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "coercion failed")
		return
	}

	mt, _, negErr := contenttype.GetAcceptableMediaType(r, diagnosticTypes)
	if negErr == nil && mt.Matches(textMediaType) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, coerce.RenderError(err))
		return
	}

	body := make([]diagnosticJSON, len(ds))
	for i, d := range ds {
		body[i] = diagnosticJSON{
			Reason:   d.Reason.String(),
			Strategy: d.Strategy.String(),
			Path:     d.Path.Strings(),
			Expected: shapeString(d.Expected),
			Actual:   shapeString(d.Actual),
			Detail:   d.Detail,
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":       map[string]any{"code": http.StatusUnprocessableEntity, "message": err.Error()},
		"diagnostics": body,
	})
}
