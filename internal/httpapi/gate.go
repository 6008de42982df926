package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"jwtpizza.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// gate is the request gate for action. It resolves the bearer token into the identity
// the action's requirement calls for, attaches it to the request context and hands off
// to h. Authorization against a concrete resource happens later, in the handler.
func (a *API) gate(action auth.Action, h http.HandlerFunc) http.HandlerFunc {
	op := action.String()
	return func(w http.ResponseWriter, r *http.Request) {
		a.metrics.OnRequest(op)
		ctx := r.Context()

		token, tokenErr := extractBearerToken(r.Header.Get(authHeader))
		var (
			actor auth.Actor
			err   error
		)
		switch a.policy.Requirement(action) {
		case auth.RequireNone:
			if tokenErr != nil {
				h(w, r)
				return
			}
			actor, err = a.sessions.Authenticate(ctx, token)
			if errors.Is(err, auth.ErrUnauthorized) {
				// A stale token on a public route is treated as no token at all.
				zerolog.Ctx(ctx).Debug().Str("action", op).Err(err).Msg("ignoring invalid token")
				h(w, r)
				return
			}
		case auth.RequireToken:
			if tokenErr != nil {
				a.reject(w, r, op, tokenErr)
				return
			}
			actor, err = a.sessions.Verify(token)
		default:
			if tokenErr != nil {
				a.reject(w, r, op, tokenErr)
				return
			}
			actor, err = a.sessions.Authenticate(ctx, token)
		}
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				a.reject(w, r, op, err)
				return
			}
			zerolog.Ctx(ctx).Error().Err(err).Str("action", op).Msg("authentication failed")
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		a.metrics.AuthOutcome("gate", "accepted")
		ctx = auth.ContextWithActor(ctx, actor)
		ctx = auth.ContextWithToken(ctx, token)
		h(w, r.WithContext(ctx))
	}
}

func (a *API) reject(w http.ResponseWriter, r *http.Request, op string, cause error) {
	a.metrics.AuthOutcome("gate", "rejected")
	zerolog.Ctx(r.Context()).Info().Str("action", op).Str("cause", cause.Error()).Msg("request rejected")
	unauthorized(w, r, "unauthorized")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
