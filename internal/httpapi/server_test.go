package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/httpapi"
	"github.com/BrandonDHaskell/turnstile/internal/live"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

type testEnv struct {
	ts  *httptest.Server
	hub *live.Hub
	reg *service.RegistrationService
}

type options struct {
	ratePerSec float64
	burst      int
	health     httpapi.Pinger

	// wrap, when set, decorates the store handed to the registration service.
	wrap func(store.Store) store.Store
}

// newTestServer wires up the full dependency graph on the in-memory store
// and returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, opt options) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	st := memory.New()
	hub := live.NewHub(logger)
	var regStore store.Store = st
	if opt.wrap != nil {
		regStore = opt.wrap(st)
	}
	reg := service.NewRegistrationService(regStore)

	health := opt.health
	if health == nil {
		health = st
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           ":0",
		Registration:   reg,
		Scan:           service.NewScanService(st, hub, logger),
		Lookup:         service.NewLookupService(st),
		Health:         health,
		Live:           hub,
		ScanRatePerSec: opt.ratePerSec,
		ScanBurst:      opt.burst,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{ts: ts, hub: hub, reg: reg}
}

func (e *testEnv) register(t *testing.T, studentID, name string) {
	t.Helper()
	if _, err := e.reg.Register(context.Background(), types.RegisterRequest{StudentID: studentID, Name: name}); err != nil {
		t.Fatalf("register %s: %v", studentID, err)
	}
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func postScan(t *testing.T, base, studentID, rfid, action string) *http.Response {
	t.Helper()
	form := url.Values{"student_id": {studentID}, "rfid_uid": {rfid}}
	if action != "" {
		form.Set("action", action)
	}
	resp, err := http.PostForm(base+"/rfid_scan", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// ── Registration ─────────────────────────────────────────────────────────────

func TestIndex_RendersForm(t *testing.T) {
	env := newTestServer(t, options{})

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/register"`) {
		t.Error("expected registration form")
	}
	if !strings.Contains(body, "學號") {
		t.Error("expected zh-TW labels by default")
	}
}

func TestRegister_Success_Redirects(t *testing.T) {
	env := newTestServer(t, options{})

	form := url.Values{"student_id": {"A001"}, "name": {"Alice"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/success?student_id=A001" {
		t.Errorf("unexpected Location %q", loc)
	}
}

func TestRegister_Duplicate_ReRendersForm(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	form := url.Values{"student_id": {"A001"}, "name": {"Someone Else"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "學號已註冊") {
		t.Errorf("expected already-registered message, got %q", body)
	}
	if !strings.Contains(body, `action="/register"`) {
		t.Error("expected the form to be rendered again")
	}
}

func TestRegister_MissingName_400(t *testing.T) {
	env := newTestServer(t, options{})

	form := url.Values{"student_id": {"A001"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRegister_EscapesEchoedInput(t *testing.T) {
	env := newTestServer(t, options{})

	form := url.Values{"student_id": {`<script>x</script>`}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)

	if strings.Contains(body, "<script>") {
		t.Error("form input was echoed without escaping")
	}
}

// collidingInsert makes every CreateIdentity fail as if another registration
// for the same id committed first.
type collidingInsert struct{ store.Store }

func (c collidingInsert) Do(ctx context.Context, fn store.TxFn) error {
	return c.Store.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, collidingTx{tx})
	})
}

type collidingTx struct{ store.Tx }

func (collidingTx) CreateIdentity(context.Context, store.IdentityRecord) error {
	return store.ErrDuplicate
}

func TestRegister_InsertCollision_400(t *testing.T) {
	env := newTestServer(t, options{wrap: func(st store.Store) store.Store { return collidingInsert{st} }})

	form := url.Values{"student_id": {"A001"}, "name": {"Alice"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "registration_failed" {
		t.Errorf("expected code registration_failed, got %q", body.Error.Code)
	}
	if body.Error.Message == "" {
		t.Error("expected an error message")
	}

	resp, err = http.Get(env.ts.URL + "/success?student_id=A001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected no identity to be stored, got %d", resp.StatusCode)
	}
}

func TestRegister_ValidationMessageLocalized(t *testing.T) {
	env := newTestServer(t, options{})

	form := url.Values{"student_id": {"A001"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register?lang=en", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)

	if !strings.Contains(body, "Name is required (max 50 characters)") {
		t.Errorf("expected English name validation message, got %q", body)
	}
}

// ── Success page ─────────────────────────────────────────────────────────────

func TestSuccess_MissingStudentID_400(t *testing.T) {
	env := newTestServer(t, options{})

	resp, err := http.Get(env.ts.URL + "/success")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSuccess_Unknown_404(t *testing.T) {
	env := newTestServer(t, options{})

	resp, err := http.Get(env.ts.URL + "/success?student_id=nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSuccess_ShowsIdentityAndQR(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	resp, err := http.Get(env.ts.URL + "/success?student_id=A001&lang=en")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Alice", "A001", "No card bound yet", "data:image/png;base64,"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}

	var langCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == "turnstile_lang" && c.Value == "en" {
			langCookie = true
		}
	}
	if !langCookie {
		t.Error("expected ?lang=en to be persisted as a cookie")
	}
}

var englishLink = regexp.MustCompile(`<a href="([^"]*)">English</a>`)

func TestSuccess_LanguageLinkKeepsStudentID(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	pageURL, err := url.Parse(env.ts.URL + "/success?student_id=A001")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resp, err := http.Get(pageURL.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)

	m := englishLink.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no English link in page %q", body)
	}
	ref, err := url.Parse(html.UnescapeString(m[1]))
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	next := pageURL.ResolveReference(ref)

	if got := next.Query().Get("student_id"); got != "A001" {
		t.Fatalf("link %q dropped student_id", next)
	}

	resp, err = http.Get(next.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body = readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 following %q, got %d", next, resp.StatusCode)
	}
	if !strings.Contains(body, "Registration complete") {
		t.Error("expected the English confirmation page")
	}
}

func TestIndex_LanguageLinkTargetsForm(t *testing.T) {
	env := newTestServer(t, options{})

	form := url.Values{"student_id": {"A001"}}
	resp, err := noRedirectClient().PostForm(env.ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)

	m := englishLink.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no English link in page %q", body)
	}
	if got := html.UnescapeString(m[1]); got != "/?lang=en" {
		t.Errorf("expected link to the form, got %q", got)
	}
}

// ── Scan ─────────────────────────────────────────────────────────────────────

func TestScan_UnknownIdentity_404(t *testing.T) {
	env := newTestServer(t, options{})

	resp := postScan(t, env.ts.URL, "ghost", "CARD-1", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestScan_FirstUseBindsThenAccepts(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sr types.ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()

	if sr.Status != "success" {
		t.Errorf("expected status=success, got %q", sr.Status)
	}
	if sr.Message != "entry 成功" {
		t.Errorf("expected message %q, got %q", "entry 成功", sr.Message)
	}

	resp = postScan(t, env.ts.URL, "A001", "CARD-1", "exit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second scan: expected 200, got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	if sr.Message != "exit 成功" {
		t.Errorf("expected message %q, got %q", "exit 成功", sr.Message)
	}
}

func TestScan_SuccessMessageNotLocalized(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	form := url.Values{"student_id": {"A001"}, "rfid_uid": {"XYZ"}}
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/rfid_scan?lang=en", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.AddCookie(&http.Cookie{Name: "turnstile_lang", Value: "en"})

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sr types.ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sr.Message != "entry 成功" {
		t.Errorf("expected message %q, got %q", "entry 成功", sr.Message)
	}
}

func TestScan_OverLongStudentID_404(t *testing.T) {
	env := newTestServer(t, options{})

	resp := postScan(t, env.ts.URL, strings.Repeat("9", service.MaxStudentIDLen+1), "XYZ", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestScan_Mismatch_400(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "")
	resp.Body.Close()

	resp = postScan(t, env.ts.URL, "A001", "CARD-2", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestScan_CredentialHeldByOther_409(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")
	env.register(t, "B002", "Bob")

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "")
	resp.Body.Close()

	resp = postScan(t, env.ts.URL, "B002", "CARD-1", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestScan_InvalidAction_400(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "sideways")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "動作必須為 entry 或 exit" {
		t.Errorf("expected localized validation message, got %q", body.Error.Message)
	}
}

func TestScan_Protobuf_OK(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	req, err := structpb.NewStruct(map[string]any{
		"student_id": "A001",
		"rfid_uid":   "CARD-1",
		"action":     "exit",
	})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	body, err := proto.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := http.Post(env.ts.URL+"/rfid_scan", "application/x-protobuf", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	raw := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("expected protobuf response, got %q", ct)
	}

	var out structpb.Struct
	if err := proto.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := out.GetFields()["message"].GetStringValue(); got != "exit 成功" {
		t.Errorf("expected message %q, got %q", "exit 成功", got)
	}
}

func TestScan_RateLimited_429(t *testing.T) {
	env := newTestServer(t, options{ratePerSec: 0.001, burst: 1})
	env.register(t, "A001", "Alice")

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first scan: expected 200, got %d", resp.StatusCode)
	}

	resp = postScan(t, env.ts.URL, "A001", "CARD-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

// ── Events ───────────────────────────────────────────────────────────────────

func TestEvents_NewestFirstAndLimited(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	for _, action := range []string{"entry", "exit", "entry"} {
		resp := postScan(t, env.ts.URL, "A001", "CARD-1", action)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("scan %s: expected 200, got %d", action, resp.StatusCode)
		}
	}

	resp, err := http.Get(env.ts.URL + "/v1/identities/A001/events?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var er types.EventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(er.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(er.Events))
	}
	if er.Events[0].ID <= er.Events[1].ID {
		t.Errorf("expected newest first, got ids %d, %d", er.Events[0].ID, er.Events[1].ID)
	}
	if er.Events[0].Action != types.ActionEntry || er.Events[1].Action != types.ActionExit {
		t.Errorf("unexpected actions %q, %q", er.Events[0].Action, er.Events[1].Action)
	}
}

func TestEvents_BadLimit_400(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	resp, err := http.Get(env.ts.URL + "/v1/identities/A001/events?limit=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEvents_UnknownIdentity_404(t *testing.T) {
	env := newTestServer(t, options{})

	resp, err := http.Get(env.ts.URL + "/v1/identities/nobody/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ── Live feed ────────────────────────────────────────────────────────────────

func TestLive_ReceivesScan(t *testing.T) {
	env := newTestServer(t, options{})
	env.register(t, "A001", "Alice")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/events/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := postScan(t, env.ts.URL, "A001", "CARD-1", "")
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string            `json:"type"`
		Content types.AccessEvent `json:"content"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "access_event" {
		t.Errorf("expected type access_event, got %q", msg.Type)
	}
	if msg.Content.StudentID != "A001" || msg.Content.CredentialID != "CARD-1" {
		t.Errorf("unexpected event %+v", msg.Content)
	}
}

// ── Health ───────────────────────────────────────────────────────────────────

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("disk on fire") }

func TestHealthz(t *testing.T) {
	env := newTestServer(t, options{})
	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	down := newTestServer(t, options{health: downPinger{}})
	resp, err = http.Get(down.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStatic_ServesStylesheet(t *testing.T) {
	env := newTestServer(t, options{})
	resp, err := http.Get(env.ts.URL + "/static/style.css")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
