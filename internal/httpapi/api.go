// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holomush/lobby/internal/auth"
	"github.com/holomush/lobby/internal/observability"
	"github.com/holomush/lobby/internal/origin"
)

// maxBodyBytes bounds JSON and form request bodies.
const maxBodyBytes = 64 << 10

// Accounts is the credential lifecycle the API drives.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context, carrier auth.TokenCarrier) (*auth.User, error)
}

// UserReader looks users up by ID.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// Deps are the collaborators of the API handler. Gate, Origins, Metrics and
// Logger are optional.
type Deps struct {
	Accounts Accounts
	Users    UserReader
	Gate     http.Handler
	Origins  *origin.Policy
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// UserRead is the public projection of a user. It never carries the hash.
type UserRead struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserRead(u *auth.User) UserRead {
	return UserRead{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userCreate struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

type tokenForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

type api struct {
	accounts Accounts
	users    UserReader
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds the API routes wrapped in request id, logging, metrics
// and CORS middleware.
func NewHandler(deps Deps) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, oops.Code("HTTPAPI_INVALID_DEPENDENCY").Errorf("accounts are required")
	}
	if deps.Users == nil {
		return nil, oops.Code("HTTPAPI_INVALID_DEPENDENCY").Errorf("user reader is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &api{
		accounts: deps.Accounts,
		users:    deps.Users,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: newValidator(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.root)
	mux.HandleFunc("POST /users/{$}", a.createUser)
	mux.HandleFunc("GET /users/{id}", a.readUser)
	mux.HandleFunc("POST /auth/token", a.login)
	mux.HandleFunc("GET /auth/me", a.me)
	if deps.Gate != nil {
		mux.Handle("GET /ws/game", deps.Gate)
	}

	var h http.Handler = mux
	h = cors(deps.Origins, h)
	h = instrument(logger, deps.Metrics, h)
	return h, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return v
}

func (a *api) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var body userCreate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		a.metrics.RecordRegistration(observability.OutcomeRejected)
		writeFieldErrors(w, fieldError{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"})
		return
	}
	if err := a.validate.Struct(body); err != nil {
		a.metrics.RecordRegistration(observability.OutcomeRejected)
		writeFieldErrors(w, validationErrors("body", err)...)
		return
	}

	user, err := a.accounts.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			a.metrics.RecordRegistration(observability.OutcomeRejected)
			writeDetail(w, http.StatusBadRequest, detailEmailTaken)
			return
		}
		if fe, ok := domainFieldError(err); ok {
			a.metrics.RecordRegistration(observability.OutcomeRejected)
			writeFieldErrors(w, fe)
			return
		}
		a.metrics.RecordRegistration(observability.OutcomeError)
		writeInternal(w, r, a.logger, "registration failed", err)
		return
	}

	a.metrics.RecordRegistration(observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, newUserRead(user))
}

func (a *api) readUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeFieldErrors(w, fieldError{
			Loc:  []string{"path", "id"},
			Msg:  "Input should be a valid integer",
			Type: "int_parsing",
		})
		return
	}

	user, err := a.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailUserNotFound)
			return
		}
		writeInternal(w, r, a.logger, "user lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserRead(user))
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	// Accepts application/x-www-form-urlencoded and multipart/form-data.
	err := r.ParseMultipartForm(maxBodyBytes)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.metrics.RecordLogin(observability.OutcomeRejected)
		writeFieldErrors(w, fieldError{Loc: []string{"body"}, Msg: "Form decode error", Type: "value_error"})
		return
	}
	form := tokenForm{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if err := a.validate.Struct(form); err != nil {
		a.metrics.RecordLogin(observability.OutcomeRejected)
		writeFieldErrors(w, validationErrors("body", err)...)
		return
	}

	token, err := a.accounts.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.metrics.RecordLogin(observability.OutcomeRejected)
			a.logger.InfoContext(r.Context(), "login rejected", "reason", reason(err))
			writeDetail(w, http.StatusBadRequest, detailInvalidCredentials)
			return
		}
		a.metrics.RecordLogin(observability.OutcomeError)
		writeInternal(w, r, a.logger, "login failed", err)
		return
	}

	a.metrics.RecordLogin(observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	header := auth.BearerHeader(r.Header.Get("Authorization"))
	if _, ok := header.Token(); !ok {
		writeUnauthorized(w, detailNotAuthenticated)
		return
	}

	user, err := a.accounts.CurrentUser(r.Context(), header)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			a.logger.InfoContext(r.Context(), "token rejected", "reason", reason(err))
			writeUnauthorized(w, detailInvalidToken)
			return
		}
		writeInternal(w, r, a.logger, "token resolution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserRead(user))
}

// reason returns the internal cause attached to a unified failure.
func reason(err error) any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Context()["reason"]
	}
	return nil
}
