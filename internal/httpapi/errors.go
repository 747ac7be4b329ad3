// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holomush/lobby/pkg/errutil"
)

// Client-facing failure messages.
const (
	detailEmailTaken         = "Email already registered"
	detailUserNotFound       = "User not found"
	detailInvalidCredentials = "Incorrect email or password"
	detailInvalidToken       = "Invalid token"
	detailNotAuthenticated   = "Not authenticated"
	detailInternal           = "Internal server error"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Detail any `json:"detail"`
}

// fieldError is one entry of a 422 detail list.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeFieldErrors(w http.ResponseWriter, errs ...fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: errs})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeInternal logs err with its oops context and answers with an opaque 500.
func writeInternal(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	errutil.LogErrorContext(r.Context(), logger, msg, err)
	writeDetail(w, http.StatusInternalServerError, detailInternal)
}

// validationErrors converts validator failures on a struct decoded from
// source ("body" or "query") into 422 entries. Field names come from the
// struct's json or form tags.
func validationErrors(source string, err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Loc: []string{source}, Msg: err.Error(), Type: "value_error"}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{
			Loc:  []string{source, fe.Field()},
			Msg:  fieldMessage(fe),
			Type: fieldType(fe.Tag()),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field required"
	case "max":
		return "String should have at most " + fe.Param() + " characters"
	default:
		return "Value failed the " + fe.Tag() + " check"
	}
}

func fieldType(tag string) string {
	switch tag {
	case "required":
		return "missing"
	case "max":
		return "string_too_long"
	default:
		return "value_error"
	}
}

// domainFieldError maps the authenticator's input validation codes to a 422
// entry. ok is false for any other error.
func domainFieldError(err error) (fieldError, bool) {
	oopsErr, isOops := oops.AsOops(err)
	if !isOops {
		return fieldError{}, false
	}
	code, _ := oopsErr.Code().(string)
	switch code {
	case "AUTH_INVALID_EMAIL":
		return fieldError{Loc: []string{"body", "email"}, Msg: lowerFirst(oopsErr.Error()), Type: "value_error"}, true
	case "AUTH_EMPTY_PASSWORD":
		return fieldError{Loc: []string{"body", "password"}, Msg: "Field required", Type: "missing"}, true
	}
	return fieldError{}, false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// fieldName reports a struct field by its json or form tag name.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}
