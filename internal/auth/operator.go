package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"gitea.jw6.us/james/odoolink/internal/config"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
)

// Authentication methods reported on Operator.
const (
	MethodStaticToken = "token"
	MethodOIDC        = "oidc"
)

// TokenVerifier checks an OIDC ID token. *oidc.IDTokenVerifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Operator is a caller allowed to see status details and debug data.
type Operator struct {
	Subject string
	Email   string
	Method  string
}

// Operators authenticates operator requests carrying a bearer token: either
// the static status token or an ID token from the configured OIDC issuer.
// A nil *Operators accepts nobody.
type Operators struct {
	token    []byte
	hashed   bool
	verifier TokenVerifier
}

// NewOperators returns an authenticator for token and verifier; either may
// be empty. A token in bcrypt form ("$2a$...", "$2b$...") is treated as the
// hash of the secret callers present.
func NewOperators(token string, verifier TokenVerifier) *Operators {
	o := &Operators{verifier: verifier}
	if token != "" {
		o.token = []byte(token)
		o.hashed = isBcrypt(token)
	}
	return o
}

// FromConfig builds Operators from server config, discovering the OIDC
// provider when an issuer is configured. The returned Login is nil unless a
// client secret and redirect URL are configured too.
func FromConfig(ctx context.Context, cfg *config.Config) (*Operators, *Login, error) {
	if cfg.OIDC.IssuerURL == "" {
		return NewOperators(cfg.StatusToken, nil), nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDC.IssuerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("discover oidc issuer: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.OIDC.ClientID})
	operators := NewOperators(cfg.StatusToken, verifier)

	if cfg.OIDC.ClientSecret == "" || cfg.OIDC.RedirectURL == "" {
		return operators, nil, nil
	}
	login := NewLogin(oauth2.Config{
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}, verifier)
	return operators, login, nil
}

// Enabled reports whether any operator credential is configured.
func (o *Operators) Enabled() bool {
	return o != nil && (len(o.token) > 0 || o.verifier != nil)
}

// Authenticate checks the request's bearer token.
func (o *Operators) Authenticate(r *http.Request) (*Operator, bool) {
	if !o.Enabled() {
		return nil, false
	}
	raw, ok := bearerToken(r)
	if !ok {
		return nil, false
	}

	if o.matchToken(raw) {
		return &Operator{Subject: "status-token", Method: MethodStaticToken}, true
	}
	if o.verifier == nil {
		return nil, false
	}

	idToken, err := o.verifier.Verify(r.Context(), raw)
	if err != nil {
		httperrors.LogWarn(r, "operator token rejected", err)
		return nil, false
	}
	op := &Operator{Subject: idToken.Subject, Method: MethodOIDC}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err == nil {
		op.Email = claims.Email
	}
	return op, true
}

// IsOperator reports whether r carries valid operator credentials.
func (o *Operators) IsOperator(r *http.Request) bool {
	_, ok := o.Authenticate(r)
	return ok
}

// Require rejects requests without operator credentials with a 401 envelope.
func (o *Operators) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := o.Authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odoolink"`)
			httperrors.Write(w, r, httperrors.New(httperrors.CodeUnauthorized, "operator credentials required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})
}

func (o *Operators) matchToken(raw string) bool {
	if len(o.token) == 0 {
		return false
	}
	if o.hashed {
		return bcrypt.CompareHashAndPassword(o.token, []byte(raw)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(raw), o.token) == 1
}

func isBcrypt(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
