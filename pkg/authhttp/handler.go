package authhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/cookie"
	"github.com/dmitrymomot/authflow/pkg/logger"
	"github.com/dmitrymomot/authflow/pkg/token"
)

// multipartOverhead is allowed on top of MaxUploadSize for form fields.
const multipartOverhead = 64 << 10

type controllerKey struct{}

// Handler serves the auth routes.
type Handler struct {
	cfg        Config
	registry   *Registry
	cookies    *cookie.Manager
	ticketKeys [][]byte
	logger     *slog.Logger
}

// NewHandler derives keys from cfg and builds a registry over factory.
func NewHandler(cfg Config, factory Factory, opts ...Option) (*Handler, error) {
	cfg = cfg.withDefaults()

	ring, err := DeriveKeyRing(cfg.Secret, cfg.PrevSecret)
	if err != nil {
		return nil, err
	}

	cookies, err := cookie.NewFromConfig(ring.Cookie(), cfg.Cookie, cookie.WithMaxAge(int(cfg.ClientTTL.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie manager: %w", err)
	}

	h := &Handler{
		cfg:        cfg,
		cookies:    cookies,
		ticketKeys: ring.Ticket(),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		if factory == nil {
			return nil, ErrNoFactory
		}
		h.registry = NewRegistry(factory, cfg.MaxClients, cfg.IdleTimeout, h.logger)
	}
	return h, nil
}

// Routes returns the auth routes, to be mounted under /auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.client)

	r.Get("/login", h.login)
	r.Post("/begin", h.begin)
	r.Get("/callback", h.callback)
	r.Post("/signup", h.signup)
	r.Post("/restart", h.restart)
	r.Post("/logout", h.logout)
	r.Get("/session", h.session)
	r.Get("/signal", h.signal)
	r.Delete("/signal", h.clearSignal)
	return r
}

// Close drops all live controllers.
func (h *Handler) Close() { h.registry.Close() }

// client resolves the caller's controller from the client-id cookie,
// issuing a new id when the cookie is missing or forged.
func (h *Handler) client(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.cookies.GetSigned(r, h.cfg.ClientCookie)
		if err == nil {
			if _, perr := uuid.Parse(id); perr != nil {
				err = perr
			}
		}
		if err != nil {
			if !errors.Is(err, cookie.ErrCookieNotFound) {
				h.logger.WarnContext(r.Context(), "client cookie rejected", logger.Error(err))
			}
			id = uuid.NewString()
			if err := h.cookies.SetSigned(w, h.cfg.ClientCookie, id); err != nil {
				writeError(w, err)
				return
			}
		}

		ctrl, err := h.registry.Get(r.Context(), id)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to create controller",
				logger.ClientID(id),
				logger.Error(err),
			)
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), controllerKey{}, ctrl)))
	})
}

func controllerFrom(ctx context.Context) *auth.Controller {
	c, _ := ctx.Value(controllerKey{}).(*auth.Controller)
	return c
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	ins, err := controllerFrom(r.Context()).BeginAuth(r.Context(), force)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, ins.URL, http.StatusFound)
}

type beginRequest struct {
	ForceReauth bool `json:"force_reauth"`
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	ins, err := controllerFrom(r.Context()).BeginAuth(r.Context(), req.ForceReauth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ins)
}

type callbackResponse struct {
	auth.Resolution
	SignupTicket string `json:"signup_ticket,omitempty"`
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	res, err := controllerFrom(r.Context()).ResolveCallback(r.Context(), r.URL.Query())
	if err != nil {
		writeErrorMeta(w, err, map[string]any{"final_state": res.Final, "trail": res.Trail})
		return
	}

	out := callbackResponse{Resolution: res}
	if res.Outcome == auth.OutcomeNeedsSignup && res.Pending != nil {
		ticket, err := token.Generate(*res.Pending, h.ticketKeys[0], h.cfg.TicketTTL)
		if err != nil {
			h.logger.WarnContext(r.Context(), "signup ticket not issued", logger.Error(err))
		} else {
			out.SignupTicket = ticket
		}
	}
	writeData(w, http.StatusOK, out)
}

type signupRequest struct {
	auth.SignupFields
	SignupTicket string `json:"signup_ticket,omitempty"`
}

type signupResponse struct {
	Session  auth.Session `json:"session"`
	Message  string       `json:"message"`
	Navigate string       `json:"navigate,omitempty"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	req, avatar, err := h.decodeSignup(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var explicit *auth.PendingProfile
	if req.SignupTicket != "" {
		p, err := h.parseTicket(req.SignupTicket)
		if err != nil {
			writeError(w, err)
			return
		}
		explicit = &p
	}

	ctrl := controllerFrom(r.Context())
	out, err := ctrl.CompleteSignup(r.Context(), req.SignupFields, explicit, avatar)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := signupResponse{Session: out.Session, Message: out.Message}
	if sig, ok := ctrl.TakeSignal(); ok {
		resp.Navigate = sig.Navigate
	}
	writeData(w, http.StatusCreated, resp)
}

// decodeSignup accepts a JSON body or a multipart form with the JSON in
// "data" and an optional "profile_picture" file.
func (h *Handler) decodeSignup(w http.ResponseWriter, r *http.Request) (signupRequest, *auth.Avatar, error) {
	var req signupRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return req, nil, bodyError(err)
			}
			return req, nil, nil
		}
		return req, nil, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	if data := r.FormValue("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			return req, nil, fmt.Errorf("%w: data: %v", ErrInvalidRequest, err)
		}
	}
	if t := r.FormValue("signup_ticket"); t != "" {
		req.SignupTicket = t
	}

	f, hdr, err := r.FormFile("profile_picture")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, bodyError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadSize+1))
	if err != nil {
		return req, nil, bodyError(err)
	}
	if int64(len(data)) > h.cfg.MaxUploadSize {
		return req, nil, ErrPayloadTooLarge
	}
	return req, &auth.Avatar{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrPayloadTooLarge
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// parseTicket accepts tickets signed with the current or previous secret.
func (h *Handler) parseTicket(t string) (auth.PendingProfile, error) {
	for _, k := range h.ticketKeys {
		p, err := token.Parse[auth.PendingProfile](t, k)
		if err == nil && p.Valid() {
			return p, nil
		}
		if errors.Is(err, token.ErrExpired) {
			return auth.PendingProfile{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
		}
	}
	return auth.PendingProfile{}, ErrInvalidTicket
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	ins, err := controllerFrom(r.Context()).RestartAuth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ins)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	body := Envelope{Data: map[string]any{"authenticated": false}}
	if err := controllerFrom(r.Context()).Logout(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "logout completed locally only", logger.Error(err))
		body.Meta = map[string]any{"remote_logout": "failed"}
	}
	writeJSON(w, http.StatusOK, body)
}

type sessionResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Session       *auth.Session        `json:"session,omitempty"`
	Pending       *auth.PendingProfile `json:"pending,omitempty"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r.Context())

	var resp sessionResponse
	if s, ok := ctrl.CurrentSession(); ok {
		resp.Authenticated = ctrl.IsAuthenticated()
		resp.Session = &s
	} else if p, ok := ctrl.PendingProfile(r.Context()); ok {
		resp.Pending = &p
	}
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) signal(w http.ResponseWriter, r *http.Request) {
	sig, ok := controllerFrom(r.Context()).TakeSignal()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeData(w, http.StatusOK, sig)
}

func (h *Handler) clearSignal(w http.ResponseWriter, r *http.Request) {
	controllerFrom(r.Context()).ClearSignal()
	w.WriteHeader(http.StatusNoContent)
}
