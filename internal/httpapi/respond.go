package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"jwtpizza.org/internal/audit"
	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/pizza"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="jwt-pizza"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// decodeJSON reads a single JSON value from the body and ignores unknown fields. The
// size cap is applied by MaxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// fail maps a domain error to its response. Policy denials are logged with their reason;
// the client only ever sees "forbidden".
func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var denied *auth.DeniedError
	switch {
	case errors.As(err, &denied):
		a.metrics.AuthOutcome(op, "denied")
		_ = audit.LogEvent(r.Context(), audit.EventDenied, map[string]any{
			"action": denied.Action.String(),
			"reason": denied.Reason,
		})
		if auth.ActorFromContext(r.Context()) == nil {
			unauthorized(w, r, "unauthorized")
			return
		}
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.metrics.AuthOutcome(op, "failure")
		unauthorized(w, r, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthorized):
		a.metrics.AuthOutcome(op, "failure")
		unauthorized(w, r, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, pizza.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, pizza.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, pizza.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("action", op).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
