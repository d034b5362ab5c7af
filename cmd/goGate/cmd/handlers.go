package cmd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/middleware"
)

const maxBodyBytes = 16 << 10

// api adapts engine operations to JSON over HTTP.
type api struct {
	engine *goGate.Engine
	logger zerolog.Logger
}

// newRouter mounts the auth routes behind the policy guard. /metrics and
// /health are served outside it.
func newRouter(engine *goGate.Engine, logger zerolog.Logger, metrics interface{ Handler() http.Handler }) http.Handler {
	a := &api{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authorize(engine))

		r.Post("/auth/login", a.login)
		r.Post("/auth/refresh", a.refresh)
		r.Post("/auth/password-reset", a.initiateReset)
		r.Post("/auth/password-reset/otp", a.verifyOTP)
		r.Get("/auth/password-reset/{sessionID}", a.verifyResetToken)
		r.Post("/auth/password-reset/{sessionID}", a.completeReset)
		r.Get("/me", a.me)
	})
	return r
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !a.decode(w, r, &body) {
		return
	}
	res, err := a.engine.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !a.decode(w, r, &body) {
		return
	}
	pair, err := a.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type initiateRequest struct {
	Phone string `json:"phone"`
}

func (a *api) initiateReset(w http.ResponseWriter, r *http.Request) {
	var body initiateRequest
	if !a.decode(w, r, &body) {
		return
	}
	res, err := a.engine.InitiatePasswordReset(r.Context(), body.Phone)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type otpRequest struct {
	SessionID string `json:"session_uid"`
	OTP       string `json:"otp"`
}

type otpResponse struct {
	Status     string `json:"status"`
	ResetToken string `json:"reset_token,omitempty"`
}

func (a *api) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if !a.decode(w, r, &body) {
		return
	}
	res, err := a.engine.VerifyPasswordResetOTP(r.Context(), body.SessionID, body.OTP)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	status := http.StatusOK
	switch res.Status {
	case goGate.OTPInvalid:
		status = http.StatusUnauthorized
	case goGate.OTPNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, otpResponse{Status: res.Status.String(), ResetToken: res.ResetToken})
}

// verifyResetToken lets a client check its reset token before asking the
// user for a new password. The token travels in X-Reset-Token.
func (a *api) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	_, ok, err := a.engine.VerifyResetToken(r.Context(), chi.URLParam(r, "sessionID"), r.Header.Get("X-Reset-Token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.fail(w, r, goGate.ErrResetTokenInvalid)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	ResetToken      string `json:"reset_token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (a *api) completeReset(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if !a.decode(w, r, &body) {
		return
	}
	err := a.engine.CompletePasswordReset(r.Context(), chi.URLParam(r, "sessionID"), body.ResetToken, body.Password, body.ConfirmPassword)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	id := goGate.IdentityFromContext(r.Context())
	if id.Anonymous() {
		a.fail(w, r, goGate.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{SubjectID: id.SubjectID, Role: id.Role.String()})
}

// -------- helpers --------

func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.fail(w, r, errors.Join(goGate.ErrBadRequest, err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail writes the client-safe form of err. Internal causes are logged only.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := goGate.KindOf(err)
	if kind == goGate.KindInternal {
		a.logger.Error().Err(err).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Error: goGate.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
