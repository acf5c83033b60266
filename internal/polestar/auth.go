package polestar

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

// The login page embeds the form target the credentials are posted to.
var reResumePath = regexp.MustCompile(`(/as/[^"'\s]+/resume/as/authorization\.ping)`)

// authenticator logs in through the provider's authorization-code flow with
// PKCE, answering the hosted login form with the account credentials.
type authenticator struct {
	cfg    *Config
	http   *http.Client
	oauth  *oauth2.Config
	issuer *url.URL
}

func newAuthenticator(ctx context.Context, cfg *Config, httpClient *http.Client) (*authenticator, error) {
	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer url: %w", err)
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering identity provider: %w", err)
	}

	return &authenticator{
		cfg:  cfg,
		http: httpClient,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			Endpoint:    provider.Endpoint(),
			RedirectURL: cfg.RedirectURL,
			Scopes:      Scopes,
		},
		issuer: issuer,
	}, nil
}

// oauthContext makes the oauth2 package use our transport for token requests.
func (a *authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http)
}

// login performs a full interactive-less login and returns a fresh token.
func (a *authenticator) login(ctx context.Context) (*oauth2.Token, error) {
	verifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	authURL := a.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	code, resumePath, err := a.openLoginPage(ctx, authURL, state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		if code, err = a.submitCredentials(ctx, resumePath, state); err != nil {
			return nil, err
		}
	}

	token, err := a.oauth.Exchange(a.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	log.Debug("Logged in to vehicle cloud", "expiry", token.Expiry)
	return token, nil
}

// openLoginPage follows the authorization request to the hosted login form.
// A still-valid provider session may skip the form and return a code directly.
func (a *authenticator) openLoginPage(ctx context.Context, authURL, state string) (code, resumePath string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("opening login page: %w", err)
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && a.isCallback(loc) {
		code, err = codeFromCallback(loc, state)
		return code, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", &StatusError{URL: a.oauth.Endpoint.AuthURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("reading login page: %w", err)
	}
	m := reResumePath.FindSubmatch(body)
	if m == nil {
		return "", "", errors.New("polestar: login form not found on authorization page")
	}
	return "", string(m[1]), nil
}

// submitCredentials posts the username and password to the login form and
// returns the authorization code from the callback redirect.
func (a *authenticator) submitCredentials(ctx context.Context, resumePath, state string) (string, error) {
	form := url.Values{
		"pf.username": {a.cfg.Username},
		"pf.pass":     {a.cfg.Password},
	}
	loc, err := a.postResume(ctx, resumePath, form)
	if err != nil {
		return "", err
	}

	// First logins on an account must confirm the data sharing agreement.
	if u, perr := url.Parse(loc); perr == nil && u.Query().Get("code") == "" {
		if uid := u.Query().Get("uid"); uid != "" {
			log.Info("Confirming vehicle cloud data sharing for account")
			loc, err = a.postResume(ctx, resumePath, url.Values{"pf.submit": {"true"}, "subject": {uid}})
			if err != nil {
				return "", err
			}
		}
	}

	return codeFromCallback(loc, state)
}

func (a *authenticator) postResume(ctx context.Context, resumePath string, form url.Values) (string, error) {
	target := a.issuer.ResolveReference(&url.URL{Path: resumePath, RawQuery: url.Values{"client_id": {a.cfg.ClientID}}.Encode()})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting login form: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if !isRedirect(resp.StatusCode) {
		// The form is rendered again on bad credentials.
		return "", fmt.Errorf("login rejected with status %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	return resp.Header.Get("Location"), nil
}

func (a *authenticator) isCallback(loc string) bool {
	return loc != "" && strings.HasPrefix(loc, a.cfg.RedirectURL)
}

// checkRedirect follows provider-internal redirects but stops at the
// registered callback, which is never served by us.
func (a *authenticator) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("polestar: stopped after 10 redirects")
	}
	if strings.HasPrefix(req.URL.String(), a.cfg.RedirectURL) {
		return http.ErrUseLastResponse
	}
	return nil
}

func codeFromCallback(loc, state string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid callback %q: %w", loc, err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization failed: %s: %s: %w", e, q.Get("error_description"), ErrUnauthorized)
	}
	if q.Get("state") != state {
		return "", errors.New("polestar: authorization state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback carried no authorization code: %w", ErrUnauthorized)
	}
	return code, nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// loginTokenSource refreshes through the refresh token while it lasts and
// falls back to a full login once the provider stops honouring it.
type loginTokenSource struct {
	ctx  context.Context
	auth *authenticator

	mu        sync.Mutex
	refresher oauth2.TokenSource
}

func newLoginTokenSource(ctx context.Context, auth *authenticator, initial *oauth2.Token) oauth2.TokenSource {
	src := &loginTokenSource{ctx: ctx, auth: auth}
	src.refresher = auth.oauth.TokenSource(auth.oauthContext(ctx), initial)
	return oauth2.ReuseTokenSource(initial, src)
}

func (s *loginTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refresher != nil {
		t, err := s.refresher.Token()
		if err == nil {
			return t, nil
		}
		log.Warn("Vehicle cloud token refresh failed, logging in again", "error", err)
	}

	t, err := s.auth.login(s.ctx)
	if err != nil {
		s.refresher = nil
		return nil, err
	}
	s.refresher = s.auth.oauth.TokenSource(s.auth.oauthContext(s.ctx), t)
	return t, nil
}
