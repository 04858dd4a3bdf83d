package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lifeswap/internal/config"
	"lifeswap/internal/db"
	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
	"lifeswap/internal/events"
	"lifeswap/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, cfg, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, userID string, roles ...string) map[string]string {
	t.Helper()
	token, _, err := signDevToken(testSecret, userID, roles, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code, env.Error.Details
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) map[string]any {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, status, string(data))
	}
	got, details := errorCode(t, data)
	if got != code {
		t.Fatalf("code %q, want %q", got, code)
	}
	return details
}

const branchingDoc = `
id: abc
title: First morning
category: family
region: Andes
scenarios:
  - id: A
    type: decision
    choices:
      - id: A-B
        text: Help with breakfast
        next: B
        points_impact: 10
      - id: A-C
        text: Stay in your room
        next: C
        points_impact: 6
  - id: B
    parent: A
    type: reflection
    points_awarded: 2
  - id: C
    parent: A
    type: info
`

const brokenDoc = `
id: broken
title: Lost map
scenarios:
  - id: lost-a
    type: decision
    choices:
      - id: lost-go
        text: Follow the river
        next: lost-nowhere
`

func importAndPublish(t *testing.T, srv *testServer, doc string) string {
	t.Helper()
	author := bearer(t, "ana", RoleAuthor)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/experiences", ImportRequest{Document: doc}, author)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}
	var imported engine.ImportResult
	if err := json.Unmarshal(data, &imported); err != nil {
		t.Fatalf("unmarshal import: %v", err)
	}
	id := imported.Experience.ID
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/experiences/"+id+"/publish", nil, author)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d: %s", res.StatusCode, string(data))
	}
	return id
}

func TestPlayThroughOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	expID := importAndPublish(t, srv, branchingDoc)
	player := bearer(t, "lee")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences/"+expID+"/start", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var ledger domain.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	if ledger.CurrentScenarioID == nil || *ledger.CurrentScenarioID != "A" {
		t.Fatalf("ledger should start at A: %+v", ledger)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ledgers/"+ledger.ID+"/scenario", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scenario status %d: %s", res.StatusCode, string(data))
	}
	var pos PositionResponse
	if err := json.Unmarshal(data, &pos); err != nil {
		t.Fatalf("unmarshal position: %v", err)
	}
	if pos.Scenario.ID != "A" || len(pos.Available) != 2 {
		t.Fatalf("unexpected position: %+v", pos)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledgers/"+ledger.ID+"/choices", ChoiceRequest{ChoiceID: "A-B", ElapsedSeconds: 12}, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("choose status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &ledger); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	if !ledger.IsCompleted || ledger.Outcome != domain.OutcomeCompleted {
		t.Fatalf("reaching B should seal the ledger: %+v", ledger)
	}
	if ledger.PointsEarned != 12 || ledger.CompletionPercentage != 100 || ledger.TimeSpent != 12 {
		t.Fatalf("unexpected aggregates: points=%d pct=%d time=%d", ledger.PointsEarned, ledger.CompletionPercentage, ledger.TimeSpent)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ledgers/"+ledger.ID+"/choices", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("choices status %d: %s", res.StatusCode, string(data))
	}
	var choices ChoicesResponse
	if err := json.Unmarshal(data, &choices); err != nil {
		t.Fatalf("unmarshal choices: %v", err)
	}
	if len(choices.Items) != 0 {
		t.Fatalf("sealed ledger should offer no choices: %+v", choices.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/stats", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var stats domain.UserStats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.EmpathyPoints != 12 || stats.ExperiencesCompleted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/ledgers?completed=true", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("my ledgers status %d: %s", res.StatusCode, string(data))
	}
	var mine ListLedgersResponse
	if err := json.Unmarshal(data, &mine); err != nil {
		t.Fatalf("unmarshal ledgers: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].ID != ledger.ID {
		t.Fatalf("unexpected ledgers: %+v", mine.Items)
	}
}

func TestDomainErrorsAreDistinguishable(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	expID := importAndPublish(t, srv, branchingDoc)
	player := bearer(t, "lee")
	author := bearer(t, "ana", RoleAuthor)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences/"+expID+"/start", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var ledger domain.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	base := srv.URL + "/v0/ledgers/" + ledger.ID

	res, data = doJSON(t, client, http.MethodPost, base+"/choices", ChoiceRequest{ChoiceID: "nope"}, player)
	expectError(t, res, data, http.StatusUnprocessableEntity, "choice_not_available")

	res, data = doJSON(t, client, http.MethodPost, base+"/choices", ChoiceRequest{ChoiceID: "A-B", ElapsedSeconds: -1}, player)
	expectError(t, res, data, http.StatusBadRequest, "invalid_input")

	res, data = doJSON(t, client, http.MethodGet, base, nil, bearer(t, "someone-else"))
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodPost, base+"/complete", nil, player)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/choices", ChoiceRequest{ChoiceID: "A-B"}, player)
	expectError(t, res, data, http.StatusConflict, "already_completed")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences", ImportRequest{Document: brokenDoc}, author)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import broken status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences/broken/start", nil, player)
	expectError(t, res, data, http.StatusConflict, "not_published")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences/broken/validate", nil, author)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var report ValidationResponse
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal validation: %v", err)
	}
	if report.Valid || len(report.Issues) == 0 {
		t.Fatalf("broken graph should report issues: %+v", report)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences/broken/publish", nil, author)
	details := expectError(t, res, data, http.StatusUnprocessableEntity, "structural_invalid")
	if issues, ok := details["issues"].([]any); !ok || len(issues) == 0 {
		t.Fatalf("structural error should carry issues: %v", details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences", ImportRequest{Document: branchingDoc}, author)
	expectError(t, res, data, http.StatusConflict, "published")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences/missing", nil, nil)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences?featured=maybe", nil, nil)
	expectError(t, res, data, http.StatusBadRequest, "invalid_input")
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/experiences", ImportRequest{Document: branchingDoc}, bearer(t, "lee"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, bearer(t, "lee"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", DevLoginRequest{UserID: "kim", Roles: []string{RoleAuthor}}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	kim := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, kim)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != "kim" || me.Source != "jwt" || len(me.Roles) != 1 {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/me/api-keys", APIKeyRequest{Name: "laptop"}, kim)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("api key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key me status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != "kim" || me.Source != "api_key" {
		t.Fatalf("unexpected api key principal: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/api-keys", nil, kim)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var keys APIKeysResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys.Items) != 1 || keys.Items[0].ID != key.ID || keys.Items[0].KeyHash != "" {
		t.Fatalf("unexpected keys: %+v", keys.Items)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/me/api-keys/"+key.ID, nil, bearer(t, "lee"))
	expectError(t, res, data, http.StatusNotFound, "not_found")
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/me/api-keys/"+key.ID, nil, kim)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "lsk_unknown"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestCatalogIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	expID := importAndPublish(t, srv, branchingDoc)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences?category=family", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list ListExperiencesResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != expID {
		t.Fatalf("unexpected catalog: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences/regions", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("regions status %d: %s", res.StatusCode, string(data))
	}
	var regions ValuesResponse
	if err := json.Unmarshal(data, &regions); err != nil {
		t.Fatalf("unmarshal regions: %v", err)
	}
	if len(regions.Items) != 1 || regions.Items[0] != "Andes" {
		t.Fatalf("unexpected regions: %v", regions.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/scenarios/A", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scenario status %d: %s", res.StatusCode, string(data))
	}
	var view engine.ScenarioView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal scenario: %v", err)
	}
	if view.Scenario.ID != "A" || len(view.Choices) != 2 {
		t.Fatalf("unexpected scenario view: %+v", view)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences/"+expID+"/scenarios", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scenarios status %d: %s", res.StatusCode, string(data))
	}
	var scenarios ScenariosResponse
	if err := json.Unmarshal(data, &scenarios); err != nil {
		t.Fatalf("unmarshal scenarios: %v", err)
	}
	if len(scenarios.Items) != 3 || scenarios.Items[0].ID != "A" || scenarios.Items[2].ID != "C" {
		t.Fatalf("unexpected scenarios: %+v", scenarios.Items)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/experiences/missing/scenarios", nil, nil)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	if !bytes.Contains(data, []byte("bearerAuth")) {
		t.Fatalf("openapi document should declare security schemes")
	}
}

func TestEventsPaginate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	expID := importAndPublish(t, srv, branchingDoc)
	author := bearer(t, "ana", RoleAuthor)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=1&experience_id="+expID, nil, author)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page EventsResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != events.ExperiencePublished || page.NextCursor == nil {
		t.Fatalf("unexpected first page: %+v", page)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=5&experience_id="+expID+"&cursor="+jsonInt(*page.NextCursor), nil, author)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var second EventsResponse
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].Type != events.ExperienceImported || second.NextCursor != nil {
		t.Fatalf("unexpected second page: %+v", second)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestWebhookDeliversNewEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{events.LedgerStarted}, Secret: "s3"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	d := newWebhookDispatcher(e)
	if d == nil {
		t.Fatalf("dispatcher should be built when webhooks are configured")
	}
	if _, err := e.ImportExperience(ctx, []byte(branchingDoc), "ana"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := e.PublishExperience(ctx, "abc", "ana"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// cursor starts at the newest existing event
	d.dispatchAll(ctx)
	if _, err := e.Start(ctx, "lee", "abc"); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != events.LedgerStarted || received[0].ExperienceID != "abc" {
		t.Fatalf("unexpected delivery: %+v", received[0])
	}
	if headers[0].Get("X-Lifeswap-Event") != events.LedgerStarted || headers[0].Get("X-Lifeswap-Secret") != "s3" {
		t.Fatalf("unexpected headers: %v", headers[0])
	}
}

func TestNoDispatcherWithoutWebhooks(t *testing.T) {
	if d := newWebhookDispatcher(newTestEngine(t, config.Default())); d != nil {
		t.Fatalf("no webhooks configured, dispatcher should be nil")
	}
}
