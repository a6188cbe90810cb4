package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

// tokenEndpoint answers code exchanges with idToken.
func tokenEndpoint(t *testing.T, idToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLogin(t *testing.T, idTok string) *Login {
	t.Helper()
	key := signingKey(t)
	if idTok == "" {
		idTok = idToken(t, key, validClaims())
	}
	srv := tokenEndpoint(t, idTok)
	return NewLogin(oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "https://odoolink.example.com/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  testIssuer + "/authorize",
			TokenURL: srv.URL + "/token",
		},
		Scopes: []string{"openid", "email"},
	}, verifierFor(key))
}

func TestLoginBegin(t *testing.T) {
	l := newTestLogin(t, "")
	rec := httptest.NewRecorder()
	l.Begin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "id.example.com" || loc.Query().Get("client_id") != testClientID {
		t.Errorf("redirect = %s", loc)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookie || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}
	if got := loc.Query().Get("state"); got == "" || got != cookies[0].Value {
		t.Errorf("state = %q, cookie = %q", got, cookies[0].Value)
	}
}

func callback(l *Login, query, cookieState string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil)
	if cookieState != "" {
		r.AddCookie(&http.Cookie{Name: stateCookie, Value: cookieState})
	}
	rec := httptest.NewRecorder()
	l.Callback(rec, r)
	return rec
}

func TestLoginCallback(t *testing.T) {
	key := signingKey(t)
	raw := idToken(t, key, validClaims())
	srv := tokenEndpoint(t, raw)
	l := NewLogin(oauth2.Config{
		ClientID: testClientID,
		Endpoint: oauth2.Endpoint{AuthURL: testIssuer + "/authorize", TokenURL: srv.URL + "/token"},
	}, verifierFor(key))

	rec := callback(l, "state=abc&code=good-code", "abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool        `json:"success"`
		Data    LoginResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.IDToken != raw || body.Data.Subject != "ops-1" || body.Data.Email != "ops@example.com" {
		t.Errorf("result = %+v", body.Data)
	}

	// The returned token works as an operator bearer token.
	ops := NewOperators("", verifierFor(key))
	if !ops.IsOperator(withBearer(body.Data.IDToken)) {
		t.Error("login token not accepted by operators")
	}
}

func TestLoginCallbackRejects(t *testing.T) {
	other := signingKey(t)
	foreign := idToken(t, other, validClaims())

	tests := []struct {
		name   string
		login  *Login
		query  string
		cookie string
	}{
		{"no cookie", newTestLogin(t, ""), "state=abc&code=good-code", ""},
		{"state mismatch", newTestLogin(t, ""), "state=abc&code=good-code", "xyz"},
		{"provider error", newTestLogin(t, ""), "state=abc&error=access_denied", "abc"},
		{"missing code", newTestLogin(t, ""), "state=abc", "abc"},
		{"bad code", newTestLogin(t, ""), "state=abc&code=bad-code", "abc"},
		{"unverifiable token", newTestLogin(t, foreign), "state=abc&code=good-code", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := callback(tt.login, tt.query, tt.cookie)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}
