package httpapi

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"
	"golang.org/x/text/message"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/i18n"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

//go:embed static
var staticFS embed.FS

// Pinger backs /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Logger       zerolog.Logger
	Addr         string
	Registration *service.RegistrationService
	Scan         *service.ScanService
	Lookup       *service.LookupService
	Health       Pinger

	// Live serves /v1/events/live when set.
	Live http.Handler

	// Per-client scan throttling. ScanRatePerSec <= 0 disables it.
	ScanRatePerSec float64
	ScanBurst      int
}

type Server struct {
	httpServer   *http.Server
	logger       zerolog.Logger
	mux          *http.ServeMux
	registration *service.RegistrationService
	scan         *service.ScanService
	lookup       *service.LookupService
	health       Pinger
	limiter      *scanLimiter
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:       d.Logger,
		mux:          mux,
		registration: d.Registration,
		scan:         d.Scan,
		lookup:       d.Lookup,
		health:       d.Health,
		limiter:      newScanLimiter(d.ScanRatePerSec, d.ScanBurst),
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /success", s.handleSuccess)
	mux.HandleFunc("POST /rfid_scan", s.handleScan)
	mux.HandleFunc("GET /v1/identities/{student_id}/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if d.Live != nil {
		mux.Handle("GET /v1/events/live", d.Live)
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// printer resolves the request locale, persisting an explicit ?lang= choice.
func (s *Server) printer(w http.ResponseWriter, r *http.Request) (*message.Printer, string) {
	tag, persist := i18n.ResolveTag(r)
	if persist {
		i18n.SetLanguageCookie(w, tag)
	}
	return i18n.Printer(tag), tag.String()
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("render page")
	}
}

// ── Registration ─────────────────────────────────────────────────────────────

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p, lang := s.printer(w, r)
	s.render(w, r, http.StatusOK, registerPage(p, registerView{page: page{Lang: lang, Path: "/"}}))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, lang := s.printer(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, registerPage(p, registerView{
			page:  page{Lang: lang, Path: "/"},
			Error: p.Sprintf(i18n.KeyInvalidRequest),
		}))
		return
	}

	req := types.RegisterRequest{
		StudentID: r.PostForm.Get("student_id"),
		Name:      r.PostForm.Get("name"),
	}
	view := registerView{page: page{Lang: lang, Path: "/"}, StudentID: req.StudentID, Name: req.Name}

	ident, err := s.registration.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			view.Error = validationMessage(p, err)
			s.render(w, r, http.StatusBadRequest, registerPage(p, view))
		case errors.Is(err, service.ErrAlreadyRegistered):
			view.Error = p.Sprintf(i18n.KeyAlreadyRegistered)
			s.render(w, r, http.StatusOK, registerPage(p, view))
		case errors.Is(err, service.ErrRegistrationFailed):
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("register")
			writeError(w, http.StatusBadRequest, "registration_failed", p.Sprintf(i18n.KeyRegistrationFailed))
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("register")
			writeError(w, http.StatusInternalServerError, "internal_error", p.Sprintf(i18n.KeyInternal))
		}
		return
	}

	http.Redirect(w, r, "/success?student_id="+url.QueryEscape(ident.StudentID), http.StatusSeeOther)
}

func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	p, lang := s.printer(w, r)

	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id", p.Sprintf(i18n.KeyInvalidRequest))
		return
	}

	ident, err := s.lookup.Identity(r.Context(), studentID)
	if err != nil {
		s.writeLookupError(w, r, p, err)
		return
	}

	qr, err := qrDataURI(ident.StudentID)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("encode qr")
	}
	s.render(w, r, http.StatusOK, successPage(p, successView{
		page:     page{Lang: lang, Path: r.URL.Path, Query: r.URL.Query()},
		Identity: ident,
		QR:       qr,
	}))
}

// ── Scan ─────────────────────────────────────────────────────────────────────

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	p, _ := s.printer(w, r)
	asProto := isProtobuf(r)

	fail := func(status int, code, msg string) {
		if asProto {
			writeProto(w, status, errorToStruct(code, msg))
			return
		}
		writeError(w, status, code, msg)
	}

	if s.limiter != nil && !s.limiter.allow(clientKey(r)) {
		w.Header().Set("Retry-After", "1")
		fail(http.StatusTooManyRequests, "too_many_requests", p.Sprintf(i18n.KeyTooManyScans))
		return
	}

	var req types.ScanRequest
	if asProto {
		var body structpb.Struct
		if err := readProto(r, &body); err != nil {
			fail(http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		req = scanRequestFromStruct(&body)
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			fail(http.StatusBadRequest, "bad_form", "invalid form body")
			return
		}
		req = types.ScanRequest{
			StudentID:    r.PostForm.Get("student_id"),
			CredentialID: r.PostForm.Get("rfid_uid"),
			Action:       r.PostForm.Get("action"),
		}
	}

	res, err := s.scan.Scan(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			fail(http.StatusBadRequest, "invalid_request", validationMessage(p, err))
		case errors.Is(err, service.ErrIdentityNotFound):
			fail(http.StatusNotFound, "identity_not_found", p.Sprintf(i18n.KeyIdentityNotFound))
		case errors.Is(err, service.ErrCredentialMismatch):
			fail(http.StatusBadRequest, "credential_mismatch", p.Sprintf(i18n.KeyCredentialMismatch))
		case errors.Is(err, service.ErrCredentialInUse):
			fail(http.StatusConflict, "credential_in_use", p.Sprintf(i18n.KeyCredentialInUse))
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("rfid_scan")
			fail(http.StatusInternalServerError, "internal_error", p.Sprintf(i18n.KeyInternal))
		}
		return
	}

	// Readers match on the success message; it stays in the default locale.
	resp := types.ScanResponse{
		Status:  "success",
		Message: i18n.Printer(i18n.Default()).Sprintf(i18n.KeyScanSuccess, res.Event.Action.String()),
	}
	if asProto {
		writeProto(w, http.StatusOK, scanResponseToStruct(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Lookup ───────────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	p, _ := s.printer(w, r)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	studentID := r.PathValue("student_id")
	events, err := s.lookup.Events(r.Context(), studentID, limit)
	if err != nil {
		s.writeLookupError(w, r, p, err)
		return
	}

	writeJSON(w, http.StatusOK, types.EventsResponse{StudentID: studentID, Events: events})
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, p *message.Printer, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(p, err))
	case errors.Is(err, service.ErrIdentityNotFound):
		writeError(w, http.StatusNotFound, "identity_not_found", p.Sprintf(i18n.KeyIdentityNotFound))
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("lookup")
		writeError(w, http.StatusInternalServerError, "internal_error", p.Sprintf(i18n.KeyInternal))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("healthz")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func validationMessage(p *message.Printer, err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidStudentID):
		return p.Sprintf(i18n.KeyInvalidStudentID, service.MaxStudentIDLen)
	case errors.Is(err, service.ErrInvalidName):
		return p.Sprintf(i18n.KeyInvalidName, service.MaxNameLen)
	case errors.Is(err, service.ErrInvalidCredentialID):
		return p.Sprintf(i18n.KeyInvalidCredential, service.MaxCredentialIDLen)
	case errors.Is(err, service.ErrInvalidAction):
		return p.Sprintf(i18n.KeyInvalidAction)
	default:
		return p.Sprintf(i18n.KeyInvalidRequest)
	}
}
