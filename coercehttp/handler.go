package coercehttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/optshape/auth"
	"github.com/ggoodman/optshape/coerce"
	"github.com/ggoodman/optshape/internal/logctx"
	"github.com/ggoodman/optshape/shape"
	"github.com/ggoodman/optshape/shapestore"
)

var (
	jsonMediaType       = contenttype.NewMediaType("application/json")
	schemaMediaType     = contenttype.NewMediaType("application/schema+json")
	textMediaType       = contenttype.NewMediaType("text/plain")
	descriptorTypes     = []contenttype.MediaType{jsonMediaType, schemaMediaType}
	diagnosticTypes     = []contenttype.MediaType{jsonMediaType, textMediaType}
	defaultMaxBodyBytes = int64(1 << 20)
)

const (
	requestIDHeader       = "X-Request-Id"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// writeJSONError emits {"error":{"code":<httpStatus>,"message":"<reason>"}}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger       *slog.Logger
	registry     *coerce.Registry
	authn        auth.Authenticator
	maxBodyBytes int64
	strategy     coerce.Strategy
	realm        string
}

// WithLogger sets the logger used by the handler. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithRegistry sets the rule registry consulted by Open coercions. Defaults
// to coerce.DefaultRegistry.
func WithRegistry(r *coerce.Registry) Option {
	return func(c *newConfig) { c.registry = r }
}

// WithAuthenticator guards descriptor writes (PUT and DELETE) with bearer
// token authentication. Without it writes are open.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.authn = a }
}

// WithMaxBodyBytes bounds request bodies. Defaults to 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(c *newConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithDefaultStrategy sets the strategy used when a coerce request does not
// name one. Defaults to coerce.Open.
func WithDefaultStrategy(s coerce.Strategy) Option {
	return func(c *newConfig) { c.strategy = s }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// Handler serves a shape registry and coerces request bodies against the
// stored descriptors.
type Handler struct {
	log      *slog.Logger
	store    shapestore.Store
	registry *coerce.Registry
	authn    auth.Authenticator
	maxBody  int64
	strategy coerce.Strategy
	realm    string
	mux      *http.ServeMux
}

// New builds a Handler over store.
func New(store shapestore.Store, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg := &newConfig{
		logger:       slog.New(slog.DiscardHandler),
		registry:     coerce.DefaultRegistry,
		maxBodyBytes: defaultMaxBodyBytes,
		strategy:     coerce.Open,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.registry == nil {
		cfg.registry = coerce.DefaultRegistry
	}

	h := &Handler{
		log:      slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		store:    store,
		registry: cfg.registry,
		authn:    cfg.authn,
		maxBody:  cfg.maxBodyBytes,
		strategy: cfg.strategy,
		realm:    cfg.realm,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /shapes", h.handleListShapes)
	mux.HandleFunc("PUT /shapes/{name}", h.handlePutShape)
	mux.HandleFunc("GET /shapes/{name}", h.handleGetShape)
	mux.HandleFunc("DELETE /shapes/{name}", h.handleDeleteShape)
	mux.HandleFunc("POST /shapes/{name}/coerce", h.handleCoerce)
	mux.HandleFunc("POST /shapes/{name}/batch", h.handleBatch)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set(requestIDHeader, id)
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  id,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

func (h *Handler) handleListShapes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := h.store.List(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "store.list.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to list shapes")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"shapes": names})
}

func (h *Handler) handlePutShape(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	name := r.PathValue("name")

	userInfo, ok := h.checkAuthentication(w, r)
	if !ok {
		return
	}
	if userInfo != nil {
		ctx = logctx.WithUserData(ctx, &logctx.UserData{UserID: userInfo.UserID()})
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !(ctype.Matches(jsonMediaType) || ctype.Matches(schemaMediaType)) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json or application/schema+json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}

	var s shape.Shape
	if ctype.Matches(schemaMediaType) {
		s, err = shape.ParseJSONSchema(body)
	} else {
		s, err = shape.Unmarshal(body)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid descriptor: "+err.Error())
		h.log.WarnContext(ctx, "shape.decode.fail", slog.String("err", err.Error()))
		return
	}

	fp, err := h.store.Put(ctx, name, s)
	if err != nil {
		if errors.Is(err, shapestore.ErrInvalidName) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.ErrorContext(ctx, "store.put.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to store shape")
		return
	}

	ctx = logctx.WithCoercionData(ctx, &logctx.CoercionData{ShapeName: name, Fingerprint: fp})
	w.Header().Set("ETag", strconv.Quote(fp))
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "fingerprint": fp})
	h.log.InfoContext(ctx, "shape.put.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleGetShape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	s, ok := h.loadShape(w, r, name)
	if !ok {
		return
	}
	fp, err := shape.Fingerprint(s)
	if err != nil {
		h.log.ErrorContext(ctx, "shape.fingerprint.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to fingerprint shape")
		return
	}
	w.Header().Set("ETag", strconv.Quote(fp))

	mt, _, err := contenttype.GetAcceptableMediaType(r, descriptorTypes)
	if err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept must allow application/json or application/schema+json")
		return
	}

	var body []byte
	if mt.Matches(schemaMediaType) {
		js, err := shape.ToJSONSchema(s)
		if err == nil {
			body, err = json.Marshal(js)
		}
		if err != nil {
			h.log.ErrorContext(ctx, "shape.schema.fail", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "failed to render json schema")
			return
		}
		w.Header().Set("Content-Type", schemaMediaType.String())
	} else {
		body, err = shape.Marshal(s)
		if err != nil {
			h.log.ErrorContext(ctx, "shape.marshal.fail", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "failed to encode shape")
			return
		}
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleDeleteShape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	userInfo, ok := h.checkAuthentication(w, r)
	if !ok {
		return
	}
	if userInfo != nil {
		ctx = logctx.WithUserData(ctx, &logctx.UserData{UserID: userInfo.UserID()})
	}

	if err := h.store.Delete(ctx, name); err != nil {
		if errors.Is(err, shapestore.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "shape not found")
			return
		}
		h.log.ErrorContext(ctx, "store.delete.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to delete shape")
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "shape.delete.ok", slog.String("name", name))
}

func (h *Handler) loadShape(w http.ResponseWriter, r *http.Request, name string) (shape.Shape, bool) {
	s, err := h.store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, shapestore.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "shape not found")
			return nil, false
		}
		h.log.ErrorContext(r.Context(), "store.get.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to load shape")
		return nil, false
	}
	return s, true
}

// checkAuthentication enforces bearer auth when an Authenticator is
// configured. It writes the challenge response itself and reports false when
// the request must stop. The returned UserInfo is nil when auth is disabled.
func (h *Handler) checkAuthentication(w http.ResponseWriter, r *http.Request) (auth.UserInfo, bool) {
	if h.authn == nil {
		return nil, true
	}
	ctx := r.Context()
	tok := auth.BearerToken(r)
	if tok == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, h.challenge(nil))
		writeJSONError(w, http.StatusUnauthorized, "bearer token required")
		return nil, false
	}
	ui, err := h.authn.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrInsufficientScope) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, h.challenge([][2]string{{"error", "insufficient_scope"}}))
			writeJSONError(w, http.StatusForbidden, "insufficient scope")
			return nil, false
		}
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, h.challenge([][2]string{{"error", "invalid_token"}}))
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return nil, false
	}
	return ui, true
}

func (h *Handler) challenge(params [][2]string) string {
	pieces := make([]string, 0, 1+len(params))
	if h.realm != "" {
		pieces = append(pieces, fmt.Sprintf("realm=%q", h.realm))
	}
	for _, p := range params {
		pieces = append(pieces, fmt.Sprintf("%s=%q", p[0], p[1]))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
