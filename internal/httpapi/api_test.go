package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/obs"
	"jwtpizza.org/internal/pizza"
	"jwtpizza.org/internal/store/memory"
)

const (
	adminEmail    = "a@jwt.com"
	adminPassword = "admin"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	metrics *obs.Metrics
	logs    *syncBuffer
}

// syncBuffer collects log output written from server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	users := memory.NewUsers()
	codec, err := auth.NewCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	ledger := auth.NewLedger(memory.NewRevocations())
	policy := auth.NewPolicy()
	sessions, err := auth.NewSessions(users, codec, ledger,
		auth.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}),
		auth.WithPolicy(policy),
	)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	if _, err := sessions.EnsureAdmin(context.Background(), "常用名字", adminEmail, adminPassword); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	svc, err := pizza.NewService(memory.NewPizza(pizza.DefaultMenu()...), users, policy)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	logs := &syncBuffer{}
	metrics := obs.NewMetrics()
	api, err := New(Options{
		Sessions:      sessions,
		Pizza:         svc,
		Metrics:       metrics,
		Logger:        zerolog.New(logs),
		Version:       "test",
		RateBurst:     100,
		RatePerSecond: 100,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		metrics: metrics,
		logs:    logs,
	}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

// expect asserts the status and decodes the body into out when out is non-nil.
func (c *apiClient) expect(resp *http.Response, code int, out any) {
	c.t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != code {
		c.t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.t.Fatalf("decode %s: %v", raw, err)
		}
	}
}

func (c *apiClient) register(name, email, password string) sessionResponse {
	c.t.Helper()
	var out sessionResponse
	c.expect(c.do(http.MethodPost, "/api/auth", "", map[string]string{
		"name": name, "email": email, "password": password,
	}), http.StatusOK, &out)
	return out
}

func (c *apiClient) login(email, password string) sessionResponse {
	c.t.Helper()
	var out sessionResponse
	c.expect(c.do(http.MethodPut, "/api/auth", "", map[string]string{
		"email": email, "password": password,
	}), http.StatusOK, &out)
	return out
}

func TestRegisterLoginLogout(t *testing.T) {
	c := newTestAPI(t)

	reg := c.register("pizza diner", "d@jwt.com", "diner")
	if reg.Token == "" || reg.User.ID == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	if len(reg.User.Roles) != 1 || reg.User.Roles[0].Role != auth.RoleDiner {
		t.Fatalf("expected diner role, got %v", reg.User.Roles)
	}

	sess := c.login("d@jwt.com", "diner")
	var orders ordersResponse
	c.expect(c.do(http.MethodGet, "/api/order", sess.Token, nil), http.StatusOK, &orders)
	if orders.DinerID != sess.User.ID {
		t.Fatalf("orders for wrong diner: %+v", orders)
	}

	var msg messageResponse
	c.expect(c.do(http.MethodDelete, "/api/auth", sess.Token, nil), http.StatusOK, &msg)
	if msg.Message != "logout successful" {
		t.Fatalf("unexpected logout message: %q", msg.Message)
	}

	resp := c.do(http.MethodPut, "/api/auth/"+sess.User.ID, sess.Token, map[string]string{"name": "x"})
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate on 401")
	}
	c.expect(resp, http.StatusUnauthorized, nil)

	// Logging out the same token again still succeeds.
	c.expect(c.do(http.MethodDelete, "/api/auth", sess.Token, nil), http.StatusOK, nil)

	// The registration token is a separate session and stays valid.
	c.expect(c.do(http.MethodGet, "/api/order", reg.Token, nil), http.StatusOK, nil)
}

func TestRegisterErrors(t *testing.T) {
	c := newTestAPI(t)
	c.register("first", "dup@jwt.com", "pw")

	c.expect(c.do(http.MethodPost, "/api/auth", "", map[string]string{
		"name": "second", "email": "DUP@jwt.com", "password": "pw",
	}), http.StatusConflict, nil)
	c.expect(c.do(http.MethodPost, "/api/auth", "", map[string]string{
		"name": "", "email": "x@jwt.com", "password": "pw",
	}), http.StatusBadRequest, nil)
	c.expect(c.do(http.MethodPost, "/api/auth", "", map[string]string{
		"name": "x", "email": "not-an-email", "password": "pw",
	}), http.StatusBadRequest, nil)
	c.expect(c.do(http.MethodPost, "/api/auth", "", map[string]any{
		"name": "x", "email": "x@jwt.com", "password": "pw", "roles": []string{"admin"},
	}), http.StatusBadRequest, nil)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	c := newTestAPI(t)
	c.register("diner", "d@jwt.com", "right")

	var wrong, unknown map[string]any
	c.expect(c.do(http.MethodPut, "/api/auth", "", map[string]string{
		"email": "d@jwt.com", "password": "wrong",
	}), http.StatusUnauthorized, &wrong)
	c.expect(c.do(http.MethodPut, "/api/auth", "", map[string]string{
		"email": "nobody@jwt.com", "password": "wrong",
	}), http.StatusUnauthorized, &unknown)
	if wrong["error"] != unknown["error"] {
		t.Fatalf("login errors differ: %v vs %v", wrong["error"], unknown["error"])
	}
}

func TestLogoutRequiresToken(t *testing.T) {
	c := newTestAPI(t)
	c.expect(c.do(http.MethodDelete, "/api/auth", "", nil), http.StatusUnauthorized, nil)
	c.expect(c.do(http.MethodDelete, "/api/auth", "garbage", nil), http.StatusUnauthorized, nil)
}

func TestFranchiseCreateDeleteByRole(t *testing.T) {
	c := newTestAPI(t)
	diner := c.register("pizza diner", "d@jwt.com", "diner")
	admin := c.login(adminEmail, adminPassword)

	body := map[string]any{"name": "pizzaPocket", "admins": []map[string]string{{"email": "d@jwt.com"}}}
	resp := c.do(http.MethodPost, "/api/franchise", diner.Token, body)
	var denied map[string]any
	c.expect(resp, http.StatusForbidden, &denied)
	if denied["error"] != "forbidden" {
		t.Fatalf("denial reason leaked: %v", denied)
	}

	var f pizza.Franchise
	c.expect(c.do(http.MethodPost, "/api/franchise", admin.Token, body), http.StatusOK, &f)
	if f.ID == "" || f.Name != "pizzaPocket" {
		t.Fatalf("unexpected franchise: %+v", f)
	}

	// The franchisee role is granted on the account; the diner's existing token keeps
	// its issuance snapshot and still cannot delete.
	c.expect(c.do(http.MethodDelete, "/api/franchise/"+f.ID, diner.Token, nil), http.StatusForbidden, nil)
	relogged := c.login("d@jwt.com", "diner")
	var mine []pizza.Franchise
	c.expect(c.do(http.MethodGet, "/api/franchise/"+relogged.User.ID, relogged.Token, nil), http.StatusOK, &mine)
	if len(mine) != 1 || mine[0].ID != f.ID {
		t.Fatalf("expected franchise listed for its admin, got %+v", mine)
	}

	c.expect(c.do(http.MethodDelete, "/api/franchise/"+f.ID, admin.Token, nil), http.StatusOK, nil)
	c.expect(c.do(http.MethodDelete, "/api/franchise/"+f.ID, admin.Token, nil), http.StatusNotFound, nil)
}

func TestDenialIsAuditedAndCounted(t *testing.T) {
	c := newTestAPI(t)
	diner := c.register("pizza diner", "d@jwt.com", "diner")
	c.expect(c.do(http.MethodPut, "/api/order/menu", diner.Token, map[string]any{"title": "x", "price": 1}), http.StatusForbidden, nil)

	logs := c.logs.String()
	if !strings.Contains(logs, `"event":"authz.denied"`) || !strings.Contains(logs, "admin role required") {
		t.Fatalf("denial not audited: %s", logs)
	}
	if !strings.Contains(logs, `"user_id":"`+diner.User.ID+`"`) {
		t.Fatalf("audit entry misses actor: %s", logs)
	}

	resp := c.do(http.MethodGet, "/metrics", "", nil)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`pizza_endpoint_requests_total{endpoint="menu.add"} 1`,
		`pizza_endpoint_requests_total{endpoint="auth.register"} 1`,
		`pizza_auth_outcomes_total{operation="menu.add",outcome="denied"} 1`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestWebClientRequestBodies(t *testing.T) {
	c := newTestAPI(t)
	c.register("pizza franchisee", "f@jwt.com", "franchisee")

	var sess sessionResponse
	c.expect(c.do(http.MethodPut, "/api/auth", "",
		json.RawMessage(`{"name":"pizza franchisee","email":"f@jwt.com","password":"franchisee"}`),
	), http.StatusOK, &sess)
	if sess.Token == "" {
		t.Fatalf("login with name field returned no token: %+v", sess)
	}

	admin := c.login(adminEmail, adminPassword)
	var f pizza.Franchise
	c.expect(c.do(http.MethodPost, "/api/franchise", admin.Token,
		json.RawMessage(`{"stores":[],"id":"","name":"pizzaPocket","admins":[{"email":"f@jwt.com"}]}`),
	), http.StatusOK, &f)
	if f.ID == "" || f.Name != "pizzaPocket" {
		t.Fatalf("unexpected franchise: %+v", f)
	}

	var st pizza.Store
	c.expect(c.do(http.MethodPost, "/api/franchise/"+f.ID+"/store", admin.Token,
		json.RawMessage(`{"franchiseId":"`+f.ID+`","name":"SLC"}`),
	), http.StatusOK, &st)
	if st.ID == "" || st.FranchiseID != f.ID || st.Name != "SLC" {
		t.Fatalf("unexpected store: %+v", st)
	}
}

func TestFranchiseUnknownAdminEmail(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login(adminEmail, adminPassword)
	c.expect(c.do(http.MethodPost, "/api/franchise", admin.Token, map[string]any{
		"name": "ghost", "admins": []map[string]string{{"email": "ghost@jwt.com"}},
	}), http.StatusNotFound, nil)
}

func TestPublicRoutesIgnoreBadTokens(t *testing.T) {
	c := newTestAPI(t)

	var menu []pizza.MenuItem
	c.expect(c.do(http.MethodGet, "/api/order/menu", "", nil), http.StatusOK, &menu)
	if len(menu) == 0 {
		t.Fatal("expected default menu")
	}
	c.expect(c.do(http.MethodGet, "/api/order/menu", "not-a-token", nil), http.StatusOK, nil)

	admin := c.login(adminEmail, adminPassword)
	c.expect(c.do(http.MethodDelete, "/api/auth", admin.Token, nil), http.StatusOK, nil)
	var list []pizza.Franchise
	c.expect(c.do(http.MethodGet, "/api/franchise", admin.Token, nil), http.StatusOK, &list)
}

func TestListFranchisesHidesAdminsFromAnonymous(t *testing.T) {
	c := newTestAPI(t)
	c.register("owner", "o@jwt.com", "pw")
	admin := c.login(adminEmail, adminPassword)
	c.expect(c.do(http.MethodPost, "/api/franchise", admin.Token, map[string]any{
		"name": "slices", "admins": []map[string]string{{"email": "o@jwt.com"}},
	}), http.StatusOK, nil)

	var anon, full []pizza.Franchise
	c.expect(c.do(http.MethodGet, "/api/franchise", "", nil), http.StatusOK, &anon)
	c.expect(c.do(http.MethodGet, "/api/franchise", admin.Token, nil), http.StatusOK, &full)
	if len(anon) != 1 || len(anon[0].Admins) != 0 {
		t.Fatalf("anonymous listing exposes admins: %+v", anon)
	}
	if len(full) != 1 || len(full[0].Admins) != 1 {
		t.Fatalf("admin listing misses admins: %+v", full)
	}
}

func TestUpdateUser(t *testing.T) {
	c := newTestAPI(t)
	alice := c.register("alice", "alice@jwt.com", "pw")
	bob := c.register("bob", "bob@jwt.com", "pw")
	admin := c.login(adminEmail, adminPassword)

	var updated auth.User
	c.expect(c.do(http.MethodPut, "/api/auth/"+alice.User.ID, alice.Token, map[string]string{
		"email": "Alice2@jwt.com",
	}), http.StatusOK, &updated)
	if updated.Email != "alice2@jwt.com" {
		t.Fatalf("email not updated: %+v", updated)
	}

	c.expect(c.do(http.MethodPut, "/api/auth/"+alice.User.ID, bob.Token, map[string]string{
		"name": "mallory",
	}), http.StatusForbidden, nil)
	c.expect(c.do(http.MethodPut, "/api/auth/"+bob.User.ID, alice.Token, map[string]string{
		"email": "bob@jwt.com",
	}), http.StatusForbidden, nil)
	c.expect(c.do(http.MethodPut, "/api/auth/"+bob.User.ID, admin.Token, map[string]string{
		"email": "alice2@jwt.com",
	}), http.StatusConflict, nil)
	c.expect(c.do(http.MethodPut, "/api/auth/01HZZZZZZZZZZZZZZZZZZZZZZZ", admin.Token, map[string]string{
		"name": "nobody",
	}), http.StatusNotFound, nil)

	c.login("alice2@jwt.com", "pw")
}

func TestStoresAndOrders(t *testing.T) {
	c := newTestAPI(t)
	diner := c.register("diner", "d@jwt.com", "pw")
	admin := c.login(adminEmail, adminPassword)

	var f pizza.Franchise
	c.expect(c.do(http.MethodPost, "/api/franchise", admin.Token, map[string]any{"name": "slices"}), http.StatusOK, &f)
	c.expect(c.do(http.MethodPost, "/api/franchise/"+f.ID+"/store", diner.Token, map[string]string{"name": "SLC"}), http.StatusForbidden, nil)
	var st pizza.Store
	c.expect(c.do(http.MethodPost, "/api/franchise/"+f.ID+"/store", admin.Token, map[string]string{"name": "SLC"}), http.StatusOK, &st)

	c.expect(c.do(http.MethodPut, "/api/order/menu", diner.Token, map[string]any{"title": "Student", "price": 0.0001}), http.StatusForbidden, nil)
	var menu []pizza.MenuItem
	c.expect(c.do(http.MethodPut, "/api/order/menu", admin.Token, map[string]any{
		"title": "Student", "description": "No topping, no sauce, just carbs", "image": "pizza9.png", "price": 0.0001,
	}), http.StatusOK, &menu)

	var created orderResponse
	c.expect(c.do(http.MethodPost, "/api/order", diner.Token, map[string]any{
		"franchiseId": f.ID,
		"storeId":     st.ID,
		"items":       []map[string]any{{"menuId": menu[0].ID, "description": "ignored", "price": 99}},
	}), http.StatusOK, &created)
	if len(created.Order.Items) != 1 || created.Order.Items[0].Price != menu[0].Price {
		t.Fatalf("order priced from request instead of menu: %+v", created.Order)
	}

	var orders ordersResponse
	c.expect(c.do(http.MethodGet, "/api/order?page=1", diner.Token, nil), http.StatusOK, &orders)
	if len(orders.Orders) != 1 || orders.Orders[0].ID != created.Order.ID {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	c.expect(c.do(http.MethodGet, "/api/order?page=zero", diner.Token, nil), http.StatusBadRequest, nil)

	c.expect(c.do(http.MethodDelete, "/api/franchise/"+f.ID+"/store/"+st.ID, admin.Token, nil), http.StatusOK, nil)
	c.expect(c.do(http.MethodDelete, "/api/franchise/"+f.ID+"/store/"+st.ID, admin.Token, nil), http.StatusNotFound, nil)
}

func TestHealthAndRouting(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/healthz", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}
	var health map[string]any
	c.expect(resp, http.StatusOK, &health)
	if health["version"] != "test" {
		t.Fatalf("unexpected health body: %v", health)
	}
	c.expect(c.do(http.MethodGet, "/readyz", "", nil), http.StatusOK, nil)

	var nf map[string]any
	c.expect(c.do(http.MethodGet, "/api/nope", "", nil), http.StatusNotFound, &nf)
	if nf["request_id"] == nil {
		t.Fatalf("expected request_id in error body: %v", nf)
	}
	c.expect(c.do(http.MethodPatch, "/api/auth", "", nil), http.StatusMethodNotAllowed, nil)

	c.expect(c.do(http.MethodGet, "/metrics", "", nil), http.StatusOK, nil)
}

func TestReadyProbeReportsFailure(t *testing.T) {
	probe := ReadyProbe{Redis: pingFunc(func(context.Context) error { return io.ErrUnexpectedEOF })}
	if err := probe.Check(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if err := (ReadyProbe{}).Check(context.Background()); err != nil {
		t.Fatalf("empty probe should be ready: %v", err)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without sessions and pizza service")
	}
}
