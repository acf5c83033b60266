package polestar

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	testVIN      = "YSMYKEAE7RB000001"
	testUser     = "driver@example.com"
	testPassword = "correct horse"
	testCode     = "auth-code-1"
)

// fakeCloud stands in for the identity provider and the GraphQL API.
type fakeCloud struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	telematics string // raw JSON for carTelematics, "null" when absent
	cars       string // raw JSON array for getConsumerCarsV2

	logins        atomic.Int32
	tokenCalls    atomic.Int32
	apiStatus     atomic.Int32
	lastState     string
	lastChallenge string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{
		t:    t,
		cars: fmt.Sprintf(`[{"vin":%q,"registrationNo":"ABC123","registrationDate":"2024-03-01","factoryCompleteDate":"2024-01-15","content":{"model":{"name":"Polestar 2"},"specification":{"battery":"400V lithium-ion battery, 78 kWh capacity, 27 modules, 324 cells","torque":"660 Nm / 487 lbf-ft"}},"software":{"version":"P3.01","versionTimestamp":"2024-05-01T10:00:00Z"}}]`, testVIN),
		telematics: `{"battery":{"batteryChargeLevelPercentage":80,"chargingStatus":"CHARGING_STATUS_IDLE"},` +
			`"odometer":{"odometerMeters":12345},"health":null}`,
	}
	f.apiStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/as/authorization.oauth2", f.authorize)
	mux.HandleFunc("/as/abc123/resume/as/authorization.ping", f.resume)
	mux.HandleFunc("/as/token.oauth2", f.token)
	mux.HandleFunc("/graphql", f.graphql)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCloud) config() *Config {
	return &Config{
		Username:    testUser,
		Password:    testPassword,
		VINs:        []string{testVIN},
		IssuerURL:   f.server.URL,
		APIURL:      f.server.URL + "/graphql",
		ClientID:    "test-client",
		RedirectURL: f.server.URL + "/callback",
	}
}

func (f *fakeCloud) setTelematics(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telematics = raw
}

func (f *fakeCloud) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                 f.server.URL,
		"authorization_endpoint": f.server.URL + "/as/authorization.oauth2",
		"token_endpoint":         f.server.URL + "/as/token.oauth2",
		"jwks_uri":               f.server.URL + "/pf/JWKS",
	})
}

func (f *fakeCloud) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.lastState = q.Get("state")
	f.lastChallenge = q.Get("code_challenge")
	f.mu.Unlock()
	if q.Get("code_challenge_method") != "S256" {
		http.Error(w, "pkce required", http.StatusBadRequest)
		return
	}
	fmt.Fprint(w, `<html><script>var cfg = { url: "/as/abc123/resume/as/authorization.ping" };</script></html>`)
}

func (f *fakeCloud) resume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("pf.username") != testUser || r.PostForm.Get("pf.pass") != testPassword {
		fmt.Fprint(w, `<html>invalid credentials</html>`)
		return
	}
	f.logins.Add(1)
	f.mu.Lock()
	state := f.lastState
	f.mu.Unlock()
	http.Redirect(w, r, f.server.URL+"/callback?"+url.Values{"code": {testCode}, "state": {state}}.Encode(), http.StatusFound)
}

func (f *fakeCloud) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.tokenCalls.Add(1)
	if r.PostForm.Get("grant_type") == "authorization_code" &&
		(r.PostForm.Get("code") != testCode || r.PostForm.Get("code_verifier") == "") {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": "invalid_grant"})
		return
	}
	writeJSON(w, map[string]any{
		"access_token":  "access-token",
		"refresh_token": "refresh-token",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *fakeCloud) graphql(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer access-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status := int(f.apiStatus.Load()); status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(req.Query, "getConsumerCarsV2"):
		fmt.Fprintf(w, `{"data":{"getConsumerCarsV2":%s}}`, f.cars)
	case strings.Contains(req.Query, "carTelematics"):
		if req.Variables["vin"] != testVIN {
			fmt.Fprint(w, `{"data":null,"errors":[{"message":"unknown vin"}]}`)
			return
		}
		fmt.Fprintf(w, `{"data":{"carTelematics":%s}}`, f.telematics)
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
