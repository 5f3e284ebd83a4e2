package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/session"
	"github.com/starford/monteerly/internal/studio"
	"github.com/starford/monteerly/internal/testutil"
)

type testEnv struct {
	router http.Handler
	store  *docstore.Store
	svc    *studio.Service
	auth   *session.Service
	token  string
}

// newTestEnv sets up a temp store, sessions, attachments and router, and
// signs up one user.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.TestStore(t)
	auth := testutil.TestSessions(t, store)
	_, files := testutil.TestAttachments(t)
	svc := studio.NewService(store, files, nil)

	sess := testutil.SignedUp(t, auth, "owner@example.com")
	return &testEnv{
		router: NewRouter(auth, svc, store, files, nil),
		store:  store,
		svc:    svc,
		auth:   auth,
		token:  sess.Token,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, e.token, method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func validProject(title string, budget float64) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "landing page",
		"budget":      budget,
		"deadline":    "2025-01-31T00:00:00Z",
	}
}

func TestSignUpSignInAndSession(t *testing.T) {
	e := newTestEnv(t)

	w := e.doAs(t, "", http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "s3cret-pass"})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", w.Code, w.Body.String())
	}

	w = e.doAs(t, "", http.MethodPost, "/auth/signin", CredentialsRequest{Email: "new@example.com", Password: "s3cret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("signin status = %d", w.Code)
	}
	sess := decode[session.Session](t, w)

	w = e.doAs(t, sess.Token, http.MethodGet, "/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d", w.Code)
	}
	if got := decode[session.Identity](t, w); got.Email != "new@example.com" {
		t.Errorf("email = %q", got.Email)
	}

	w = e.doAs(t, sess.Token, http.MethodPost, "/auth/signout", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("signout status = %d", w.Code)
	}
	w = e.doAs(t, sess.Token, http.MethodGet, "/session", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("session after signout = %d, want 401", w.Code)
	}
}

func TestAuthFailuresCarryReason(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		path   string
		body   CredentialsRequest
		reason string
	}{
		{"/auth/signup", CredentialsRequest{Email: "bad", Password: "s3cret-pass"}, session.ReasonInvalidEmail},
		{"/auth/signup", CredentialsRequest{Email: "x@example.com", Password: "1"}, session.ReasonWeakPassword},
		{"/auth/signup", CredentialsRequest{Email: "owner@example.com", Password: "s3cret-pass"}, session.ReasonEmailInUse},
		{"/auth/signin", CredentialsRequest{Email: "owner@example.com", Password: "nope-nope"}, session.ReasonInvalidCredential},
	}
	for _, c := range cases {
		w := e.doAs(t, "", http.MethodPost, c.path, c.body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d", c.path, c.reason, w.Code)
			continue
		}
		if got := decode[errResponse](t, w).Reason; got != c.reason {
			t.Errorf("reason = %q, want %q", got, c.reason)
		}
	}
}

func TestFederatedDisabled(t *testing.T) {
	e := newTestEnv(t)
	w := e.doAs(t, "", http.MethodGet, "/auth/federated", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[errResponse](t, w).Reason; got != session.ReasonFederatedDisabled {
		t.Errorf("reason = %q", got)
	}

	w = e.doAs(t, "", http.MethodGet, "/auth/federated/callback?code=x&state=y", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("callback without state cookie = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t)

	if w := e.doAs(t, "", http.MethodGet, "/projects", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := e.doAs(t, "wrong", http.MethodGet, "/projects", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/projects", nil); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestQueryTokenOnlyOnEventStreams(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/session", "/projects", "/dashboard"} {
		w := e.doAs(t, "", http.MethodGet, path+"?access_token="+e.token, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s with access_token = %d, want 401", path, w.Code)
		}
	}
}

func TestAccessTokenKeptOutOfRequestLog(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	logged := middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(&buf, "", 0),
		NoColor: true,
	})(e.router)
	h := StripAccessToken(logged)

	req := httptest.NewRequest(http.MethodGet, "/session?access_token="+e.token+"&x=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if strings.Contains(buf.String(), e.token) {
		t.Errorf("token leaked into request log: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "/session?x=1") {
		t.Errorf("request log lost the rest of the query: %s", buf.String())
	}
}

func TestProjectCRUD(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/projects", validProject("Site", 1200))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[RecordResponse](t, w)
	if created.Status != "draft" || created.EscrowStatus != "unfunded" {
		t.Errorf("defaults = %s/%s", created.Status, created.EscrowStatus)
	}
	if len(created.Next) != 1 || created.Next[0] != "hiring" {
		t.Errorf("next = %v", created.Next)
	}

	w = e.do(t, http.MethodGet, "/projects/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = e.do(t, http.MethodPut, "/projects/"+created.ID, validProject("Site v2", 1500))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[RecordResponse](t, w); got.Title != "Site v2" || got.Budget != 1500 {
		t.Errorf("updated = %+v", got.Record)
	}

	w = e.do(t, http.MethodGet, "/projects", nil)
	list := decode[ListResponse](t, w)
	if len(list.Records) != 1 || list.Aggregates.TotalBudget != 1500 {
		t.Errorf("list = %+v", list)
	}

	w = e.do(t, http.MethodDelete, "/projects/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/projects/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestProjectValidationIs422(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/projects", validProject("", 0))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	body := decode[errResponse](t, w)
	if body.Fields["title"] == "" || body.Fields["budget"] == "" {
		t.Errorf("fields = %v", body.Fields)
	}

	w = e.do(t, http.MethodGet, "/projects", nil)
	if list := decode[ListResponse](t, w); len(list.Records) != 0 {
		t.Errorf("invalid project reached the store: %+v", list.Records)
	}
}

func TestProjectDeadlineAcceptsDateOnly(t *testing.T) {
	e := newTestEnv(t)

	body := validProject("Dated", 10)
	body["deadline"] = "2025-01-31"
	w := e.do(t, http.MethodPost, "/projects", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("date-only deadline = %d, body = %s", w.Code, w.Body.String())
	}
	if rec := decode[RecordResponse](t, w); rec.Deadline == nil || rec.Deadline.Format("2006-01-02") != "2025-01-31" {
		t.Errorf("deadline = %v", rec.Deadline)
	}

	body["deadline"] = "next week"
	w = e.do(t, http.MethodPost, "/projects", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unparseable deadline = %d, want 422", w.Code)
	}
	if got := decode[errResponse](t, w); got.Fields["deadline"] == "" {
		t.Errorf("fields = %v", got.Fields)
	}
}

func TestHugeBudgetsAreRejected(t *testing.T) {
	e := newTestEnv(t)

	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, "/projects", validProject("Huge", math.MaxFloat64))
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("huge budget = %d, want 422", w.Code)
		}
	}
	for _, path := range []string{"/projects", "/dashboard"} {
		w := e.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK || w.Body.Len() == 0 {
			t.Errorf("%s = %d with %d bytes", path, w.Code, w.Body.Len())
		}
	}
}

func TestWriteJSONUnencodableIs500(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"total": math.Inf(1)})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if got := decode[errResponse](t, w); got.Error == "" {
		t.Errorf("missing error body: %s", w.Body.String())
	}
}

func TestOtherOwnersProjectIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/projects", validProject("Mine", 10))
	created := decode[RecordResponse](t, w)

	other := testutil.SignedUp(t, e.auth, "other@example.com")
	if w := e.doAs(t, other.Token, http.MethodGet, "/projects/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("other owner get = %d, want 404", w.Code)
	}
	if w := e.doAs(t, other.Token, http.MethodDelete, "/projects/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("other owner delete = %d, want 404", w.Code)
	}
}

func TestStatusTransitions(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/projects", validProject("Site", 10))
	project := decode[RecordResponse](t, w)

	w = e.do(t, http.MethodPost, "/projects/"+project.ID+"/status", StatusRequest{Status: "review"})
	if w.Code != http.StatusConflict {
		t.Errorf("illegal project transition = %d, want 409", w.Code)
	}
	w = e.do(t, http.MethodPost, "/projects/"+project.ID+"/status", StatusRequest{Status: "hiring"})
	if w.Code != http.StatusOK {
		t.Fatalf("legal project transition = %d, body = %s", w.Code, w.Body.String())
	}

	brief := map[string]any{
		"title":       "Logo",
		"client_name": "Acme",
		"budget":      300,
		"deadline":    "2025-02-01T00:00:00Z",
	}
	w = e.do(t, http.MethodPost, "/briefs", brief)
	if w.Code != http.StatusCreated {
		t.Fatalf("create brief = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[RecordResponse](t, w)
	if created.Status != "pending" || created.ClientName != "Acme" {
		t.Errorf("brief = %+v", created.Record)
	}

	w = e.do(t, http.MethodPost, "/briefs/"+created.ID+"/status", StatusRequest{Status: "in_progress"})
	if w.Code != http.StatusConflict {
		t.Errorf("pending → in_progress = %d, want 409", w.Code)
	}
	w = e.do(t, http.MethodPost, "/briefs/"+created.ID+"/status", StatusRequest{Status: "accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("pending → accepted = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/briefs/"+created.ID, nil)
	if got := decode[RecordResponse](t, w); got.Status != "accepted" {
		t.Errorf("status = %s", got.Status)
	}

	w = e.do(t, http.MethodGet, "/briefs?status=accepted", nil)
	if list := decode[ListResponse](t, w); len(list.Records) != 1 {
		t.Errorf("filtered briefs = %d", len(list.Records))
	}
}

func TestDashboardEndpoint(t *testing.T) {
	e := newTestEnv(t)
	for _, budget := range []float64{100, 250} {
		if w := e.do(t, http.MethodPost, "/projects", validProject("P", budget)); w.Code != http.StatusCreated {
			t.Fatalf("create = %d", w.Code)
		}
	}
	w := e.do(t, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	dash := decode[studio.Dashboard](t, w)
	if dash.Projects.TotalBudget != 350 || dash.Projects.Total != 2 || len(dash.Recent) != 2 {
		t.Errorf("dashboard = %+v", dash)
	}
}

// Attachment tests.

func uploadFile(t *testing.T, e *testEnv, projectID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/projects/"+projectID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadListDownloadAttachment(t *testing.T) {
	e := newTestEnv(t)
	project := decode[RecordResponse](t, e.do(t, http.MethodPost, "/projects", validProject("Site", 10)))

	w := uploadFile(t, e, project.ID, "brief.txt", []byte("hello"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/projects/"+project.ID+"/attachments", nil)
	if !strings.Contains(w.Body.String(), `"name":"brief.txt"`) {
		t.Errorf("list = %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/projects/"+project.ID+"/attachments/brief.txt", nil)
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("download = %d %q", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodDelete, "/projects/"+project.ID+"/attachments/brief.txt", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/projects/"+project.ID+"/attachments/brief.txt", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("download after delete = %d, want 404", w.Code)
	}
}

func TestUploadAttachment_InvalidFilename(t *testing.T) {
	e := newTestEnv(t)
	project := decode[RecordResponse](t, e.do(t, http.MethodPost, "/projects", validProject("Site", 10)))

	w := uploadFile(t, e, project.ID, ".hidden", []byte("x"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("hidden filename = %d, want 400", w.Code)
	}
}

func TestUploadAttachment_UnknownProject(t *testing.T) {
	e := newTestEnv(t)
	w := uploadFile(t, e, "missing", "a.txt", []byte("x"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown project = %d, want 404", w.Code)
	}
}

// SSE tests.

type sseEvent struct {
	Type string
	Data string
}

func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Type != "":
			return ev
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ev
}

func TestProjectEventsStreamSnapshots(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/projects/events", nil)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sc := bufio.NewScanner(resp.Body)

	first := readEvent(t, sc)
	if first.Type != "snapshot" || !strings.Contains(first.Data, `"records":[]`) {
		t.Fatalf("first event = %+v", first)
	}

	if w := e.do(t, http.MethodPost, "/projects", validProject("Live", 42)); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	next := readEvent(t, sc)
	if next.Type != "snapshot" || !strings.Contains(next.Data, `"title":"Live"`) {
		t.Fatalf("second event = %+v", next)
	}
	if !strings.Contains(next.Data, `"total_budget":42`) {
		t.Errorf("aggregates missing from %s", next.Data)
	}
}

func TestProjectEventsRequireAuth(t *testing.T) {
	e := newTestEnv(t)
	if w := e.doAs(t, "", http.MethodGet, "/projects/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestEventsEndWithErrorWhenStoreCloses(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/briefs/events?access_token="+e.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)

	if ev := readEvent(t, sc); ev.Type != "snapshot" {
		t.Fatalf("first event = %+v", ev)
	}

	e.store.Close()

	if ev := readEvent(t, sc); ev.Type != "error" {
		t.Fatalf("terminal event = %+v", ev)
	}
}
