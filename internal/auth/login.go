package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
)

const (
	stateCookie = "odoolink_oauth_state"
	stateMaxAge = 10 * time.Minute
)

// Login runs the OIDC authorization code flow for operators. The callback
// returns the verified ID token so the operator can send it as a bearer
// token to the status and debug endpoints; no session is kept.
type Login struct {
	oauth    oauth2.Config
	verifier TokenVerifier
}

// NewLogin returns a Login that exchanges codes with cfg and checks the
// resulting ID tokens with verifier.
func NewLogin(cfg oauth2.Config, verifier TokenVerifier) *Login {
	return &Login{oauth: cfg, verifier: verifier}
}

// LoginResult is the body returned by the callback.
type LoginResult struct {
	IDToken   string    `json:"idToken"`
	ExpiresAt time.Time `json:"expiresAt"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email,omitempty"`
}

// Begin redirects to the provider with a fresh state value, remembered in a
// short-lived cookie.
func (l *Login) Begin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		httperrors.InternalError(w, r, err, "could not start login")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, l.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the flow: it checks state, exchanges the code and
// verifies the ID token.
func (l *Login) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || q.Get("state") == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "login state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})

	if e := q.Get("error"); e != "" {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "login was not completed").
			WithDetails(map[string]any{"providerError": e}))
		return
	}
	code := q.Get("code")
	if code == "" {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "missing authorization code"))
		return
	}

	token, err := l.oauth.Exchange(r.Context(), code)
	if err != nil {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "authorization code was rejected").Wrap(err))
		return
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "provider returned no id token"))
		return
	}
	idToken, err := l.verifier.Verify(r.Context(), raw)
	if err != nil {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "id token was rejected").Wrap(err))
		return
	}

	result := LoginResult{IDToken: raw, ExpiresAt: idToken.Expiry, Subject: idToken.Subject}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err == nil {
		result.Email = claims.Email
	}
	httperrors.LogInfo(r, fmt.Sprintf("operator login: %s", result.Subject))
	w.Header().Set("Cache-Control", "no-store")
	httperrors.OK(w, result)
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate login state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
