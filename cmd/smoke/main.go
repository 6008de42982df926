package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jwtpizza.org/internal/obs"
)

type session struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(ctx context.Context, method, path, token string, body any, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func expect(logger zerolog.Logger, step string, got, want int, err error) {
	if err != nil {
		logger.Fatal().Err(err).Str("step", step).Msg("smoke failed")
	}
	if got != want {
		logger.Fatal().Str("step", step).Int("status", got).Int("want", want).Msg("smoke failed")
	}
	logger.Info().Str("step", step).Int("status", got).Msg("ok")
}

func main() {
	logger := obs.NewLogger(os.Stdout, "info")
	base := os.Getenv("PIZZA_SMOKE_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	email := fmt.Sprintf("smoke-%s@jwt.com", uuid.NewString()[:8])
	password := uuid.NewString()

	var reg session
	code, err := c.call(ctx, http.MethodPost, "/api/auth", "", map[string]string{
		"name": "smoke diner", "email": email, "password": password,
	}, &reg)
	expect(logger, "register", code, http.StatusOK, err)

	var login session
	code, err = c.call(ctx, http.MethodPut, "/api/auth", "", map[string]string{
		"email": email, "password": password,
	}, &login)
	expect(logger, "login", code, http.StatusOK, err)

	code, err = c.call(ctx, http.MethodGet, "/api/order", login.Token, nil, nil)
	expect(logger, "list orders", code, http.StatusOK, err)

	code, err = c.call(ctx, http.MethodPost, "/api/franchise", login.Token, map[string]any{"name": "smoke"}, nil)
	expect(logger, "diner creates franchise", code, http.StatusForbidden, err)

	code, err = c.call(ctx, http.MethodDelete, "/api/auth", login.Token, nil, nil)
	expect(logger, "logout", code, http.StatusOK, err)

	code, err = c.call(ctx, http.MethodPut, "/api/auth/"+login.User.ID, login.Token, map[string]string{"name": "after logout"}, nil)
	expect(logger, "revoked token rejected", code, http.StatusUnauthorized, err)

	code, err = c.call(ctx, http.MethodGet, "/api/order", reg.Token, nil, nil)
	expect(logger, "other session still valid", code, http.StatusOK, err)

	logger.Info().Str("user_id", login.User.ID).Msg("smoke test passed")
}
