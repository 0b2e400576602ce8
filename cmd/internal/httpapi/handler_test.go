package httpapi

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"podium/cmd/internal/live"
	"podium/cmd/internal/reaction"
	"podium/cmd/internal/session"
	"podium/cmd/internal/store"
	"podium/cmd/security/token"
)

type apiEnv struct {
	srv       *httptest.Server
	hostToken string
	userToken string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	hostToken, err := token.Sign(token.Payload{Name: "host", Date: "2026-08-30"}, key)
	if err != nil {
		t.Fatalf("sign host token: %v", err)
	}
	userToken, err := token.Sign(token.Payload{Name: "audience", Date: "2026-08-30"}, key)
	if err != nil {
		t.Fatalf("sign user token: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := token.NewVerifier(&key.PublicKey)

	sessions := store.NewMemory[session.Session]("sessions", nil)
	hosts := store.NewMemory[session.Identity]("hosts", []string{"token"})
	users := store.NewMemory[session.Identity]("users", []string{"token"})
	reactions := store.NewMemory[reaction.Reaction]("reactions", reaction.Indexes)

	hub := live.NewHub(log)
	registry := session.NewRegistry(log, verifier, sessions, hosts, users, hub)
	ledger := reaction.NewLedger(log, registry.Guard(), reactions, users)

	h := NewHandler(log, registry, ledger, nil, Counters{})
	r := chi.NewRouter()
	h.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &apiEnv{srv: srv, hostToken: hostToken, userToken: userToken}
}

// newClient returns an http client with its own cookie jar, standing in for
// one browser.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (e *apiEnv) do(t *testing.T, c *http.Client, method, path, tok string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set(HeaderToken, tok)
	}

	res, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (e *apiEnv) createSession(t *testing.T, host *http.Client) session.NewSessionResult {
	t.Helper()

	res, data := e.do(t, host, http.MethodPost, "/api/sessions", e.hostToken, session.NewSessionBody{
		UserToken: e.userToken,
		APIURL:    "https://api.example.com",
		WebUIURL:  "https://slides.example.com",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", res.StatusCode, data)
	}

	var created session.NewSessionResult
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.SessionUID == "" || created.HostUID == "" {
		t.Fatalf("create response incomplete: %+v", created)
	}
	return created
}

func (e *apiEnv) login(t *testing.T, c *http.Client, sid string) string {
	t.Helper()

	res, data := e.do(t, c, http.MethodPost, "/api/sessions/"+sid+"/login", e.userToken, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d body %s", res.StatusCode, data)
	}
	var body struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.UID == "" {
		t.Fatal("login returned empty uid")
	}
	return body.UID
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	host := newClient(t)
	viewer := newClient(t)

	created := env.createSession(t, host)
	sid := created.SessionUID

	// Public lookup sees the audience token and urls, never the host token.
	res, data := env.do(t, viewer, http.MethodGet, "/api/sessions/"+sid, "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get session: status %d", res.StatusCode)
	}
	var info session.PublicInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("decode public info: %v", err)
	}
	if info.UserToken != env.userToken {
		t.Fatal("public info missing the audience token")
	}
	if bytes.Contains(data, []byte(env.hostToken)) {
		t.Fatal("public info leaked the host token")
	}

	// Unknown session answers null, not 404.
	res, data = env.do(t, viewer, http.MethodGet, "/api/sessions/01J0000000000000000000000X", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("absent session: status %d", res.StatusCode)
	}
	if string(bytes.TrimSpace(data)) != "null" {
		t.Fatalf("absent session body = %s, want null", data)
	}

	uid := env.login(t, viewer, sid)

	// The second login reuses the cookie marker, no new identity.
	uid2 := env.login(t, viewer, sid)
	if uid2 != uid {
		t.Fatalf("login not idempotent: %q then %q", uid, uid2)
	}

	// Host flips the slide; viewer reads it back.
	res, data = env.do(t, host, http.MethodPut, "/api/sessions/"+sid+"/state", env.hostToken,
		setStateBody{Page: "4", State: "poll-open"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set state: status %d body %s", res.StatusCode, data)
	}

	res, data = env.do(t, viewer, http.MethodGet, "/api/sessions/"+sid+"/state", env.userToken, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get state: status %d body %s", res.StatusCode, data)
	}
	var st session.Session
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Page != "4" || st.State != "poll-open" {
		t.Fatalf("state = %q/%q, want 4/poll-open", st.Page, st.State)
	}
}

func TestReactionsOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	host := newClient(t)
	viewer := newClient(t)

	created := env.createSession(t, host)
	sid := created.SessionUID
	uid := env.login(t, viewer, sid)

	react := func(page, kind string) (*http.Response, []byte) {
		return env.do(t, viewer, http.MethodPost, "/api/sessions/"+sid+"/reactions", env.userToken,
			reactBody{UID: uid, Page: page, Reaction: kind})
	}

	for _, kind := range []string{"clap", "clap", "wow"} {
		res, data := react("2", kind)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("react: status %d body %s", res.StatusCode, data)
		}
	}
	res, data := react("3", "clap")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("react: status %d body %s", res.StatusCode, data)
	}

	list := func(query string) []reaction.Reaction {
		res, data := env.do(t, host, http.MethodGet, "/api/sessions/"+sid+"/reactions"+query, env.hostToken, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list reactions: status %d body %s", res.StatusCode, data)
		}
		var out []reaction.Reaction
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode reactions: %v", err)
		}
		return out
	}

	if got := list(""); len(got) != 4 {
		t.Fatalf("all reactions = %d, want 4 (duplicates kept)", len(got))
	}
	if got := list("?page=2"); len(got) != 3 {
		t.Fatalf("page 2 reactions = %d, want 3", len(got))
	}
	if got := list("?page=2&uid=" + uid); len(got) != 3 {
		t.Fatalf("page 2 uid reactions = %d, want 3", len(got))
	}
	if got := list("?uid=nobody"); len(got) != 0 {
		t.Fatalf("unknown uid reactions = %d, want 0", len(got))
	}

	// The audience credential cannot read the ledger.
	res, _ = env.do(t, viewer, http.MethodGet, "/api/sessions/"+sid+"/reactions", env.userToken, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer list status = %d, want 403", res.StatusCode)
	}
}

func TestErrorMappingOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	host := newClient(t)

	created := env.createSession(t, host)
	sid := created.SessionUID

	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		body   any
		want   int
	}{
		{
			name: "missing credential", method: http.MethodPost,
			path: "/api/sessions", tok: "", body: session.NewSessionBody{UserToken: env.userToken, APIURL: "a", WebUIURL: "b"},
			want: http.StatusUnauthorized,
		},
		{
			name: "garbage credential", method: http.MethodPost,
			path: "/api/sessions", tok: "not.a.token", body: session.NewSessionBody{UserToken: env.userToken, APIURL: "a", WebUIURL: "b"},
			want: http.StatusUnauthorized,
		},
		{
			name: "state change on unknown session", method: http.MethodPut,
			path: "/api/sessions/unknown/state", tok: env.hostToken, body: setStateBody{Page: "1", State: "s"},
			want: http.StatusNotFound,
		},
		{
			name: "state change with audience credential", method: http.MethodPut,
			path: "/api/sessions/" + sid + "/state", tok: env.userToken, body: setStateBody{Page: "1", State: "s"},
			want: http.StatusForbidden,
		},
		{
			name: "state change with empty page", method: http.MethodPut,
			path: "/api/sessions/" + sid + "/state", tok: env.hostToken, body: setStateBody{Page: "", State: "s"},
			want: http.StatusBadRequest,
		},
		{
			name: "react without login", method: http.MethodPost,
			path: "/api/sessions/" + sid + "/reactions", tok: env.userToken,
			body: reactBody{UID: "someone", Page: "1", Reaction: "clap"},
			want: http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// A fresh client per case: no cookies bleed between scenarios.
			res, data := env.do(t, newClient(t), tc.method, tc.path, tc.tok, tc.body)
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", res.StatusCode, tc.want, data)
			}
			var e struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
				t.Fatalf("error body = %s", data)
			}
		})
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newAPIEnv(t)
	host := newClient(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/sessions", bytes.NewReader([]byte(`{"userToken": 5`)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(HeaderToken, env.hostToken)

	res, err := host.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newAPIEnv(t)
	host := newClient(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/sessions",
		bytes.NewReader([]byte(`{"userToken":"x","surprise":true}`)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(HeaderToken, env.hostToken)

	res, err := host.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}
