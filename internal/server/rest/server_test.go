package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/metrics"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	users *fakeUsers
	comp  *fakeCompletions
	recs  *fakeRecords
	grant *fakeGrants
	creds *fakeCredentials
	mets  *metrics.Metrics
}

func newTestEnv() *testEnv {
	alice := &models.User{ID: "alice", Email: "alice@example.com", CreatedAt: fixedNow}
	admin := &models.User{ID: "root", Email: "root@example.com", CreatedAt: fixedNow}
	env := &testEnv{
		users: &fakeUsers{
			tokens:   map[string]*models.User{"alice-token": alice, "admin-token": admin},
			adminID:  "root",
			loginRes: &services.LoginResult{User: alice, Token: "fresh-token"},
		},
		comp:  &fakeCompletions{res: &services.CompletionResult{Content: "hi there", Conversation: "conv-1"}},
		recs:  &fakeRecords{},
		grant: &fakeGrants{},
		creds: &fakeCredentials{},
		mets:  metrics.New(),
	}
	env.srv = NewServer("127.0.0.1:0", discardLogger(), Services{
		Users:       env.users,
		Completions: env.comp,
		Records:     env.recs,
		Grants:      env.grant,
		Credentials: env.creds,
		Metrics:     env.mets,
	})
	env.srv.now = func() time.Time { return fixedNow }
	return env
}

type testEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) testEnvelope {
	t.Helper()
	var rdr *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = strings.NewReader(string(b))
	} else {
		rdr = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) testEnvelope {
	t.Helper()
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "envelope responses are always HTTP 200")

	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealthz(t *testing.T) {
	e := newTestEnv()
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodPost, "/auth/login/", "", map[string]string{"email": "alice@example.com", "password": "pw"})
	require.Equal(t, common.CodeOK, got.Code)
	var v userView
	require.NoError(t, json.Unmarshal(got.Data, &v))
	assert.Equal(t, "fresh-token", v.Token)
	assert.Equal(t, "alice", v.UserID)
	assert.Equal(t, "alice", v.Identifier)
	assert.Equal(t, fixedNow.UnixMilli(), v.CreateAt)

	got = e.do(t, http.MethodPost, "/auth/login/", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, common.CodeBadRequest, got.Code)
	assert.Equal(t, common.ErrPasswordRequired.Error(), got.Msg)

	e.users.loginErr = common.ErrInvalidCredentials
	got = e.do(t, http.MethodPost, "/auth/login/", "", map[string]string{"email": "a", "password": "b"})
	assert.Equal(t, common.CodeBadRequest, got.Code)
}

func TestLogin_FormEncoded(t *testing.T) {
	e := newTestEnv()
	form := url.Values{"email": {"alice@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got := e.serve(t, req)
	assert.Equal(t, common.CodeOK, got.Code)
}

func TestAuthentication(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodGet, "/auth/info/", "", nil)
	assert.Equal(t, common.CodeUnauthorized, got.Code)

	got = e.do(t, http.MethodGet, "/auth/info/", "nope", nil)
	assert.Equal(t, common.CodeUnauthorized, got.Code)

	for _, scheme := range []string{"Token", "Bearer", "bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/info/", nil)
		req.Header.Set("Authorization", scheme+" alice-token")
		got = e.serve(t, req)
		require.Equal(t, common.CodeOK, got.Code, scheme)
		var v userView
		require.NoError(t, json.Unmarshal(got.Data, &v))
		assert.Equal(t, "alice@example.com", v.Email)
		assert.Empty(t, v.Token)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/info/", nil)
	req.Header.Set("Authorization", "Basic alice-token")
	assert.Equal(t, common.CodeUnauthorized, e.serve(t, req).Code)
}

func TestLogout(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodPost, "/auth/logout/", "alice-token", nil)
	assert.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, 1, e.users.logouts)

	got = e.do(t, http.MethodGet, "/auth/info/", "alice-token", nil)
	assert.Equal(t, common.CodeUnauthorized, got.Code)
}

func TestCompletion(t *testing.T) {
	e := newTestEnv()
	body := map[string]any{
		"messages":     []map[string]string{{"role": "user", "content": "hello"}},
		"conversation": "conv-1",
		"model":        "gpt-4",
		"max_token":    64,
		"temperature":  0.5,
	}

	for _, path := range []string{"/gpt/completion/", "/gpt/competion/"} {
		got := e.do(t, http.MethodPost, path, "alice-token", body)
		require.Equal(t, common.CodeOK, got.Code, path)
		var v completionView
		require.NoError(t, json.Unmarshal(got.Data, &v))
		assert.Equal(t, completionView{Content: "hi there", Conversation: "conv-1"}, v)
	}

	assert.Equal(t, "alice", e.comp.user.ID)
	assert.Equal(t, "conv-1", e.comp.lastReq.Conversation)
	assert.Equal(t, "gpt-4", e.comp.lastReq.Model)
	assert.Equal(t, 64, e.comp.lastReq.MaxTokens)
	require.NotNil(t, e.comp.lastReq.Temperature)
	assert.InDelta(t, 0.5, *e.comp.lastReq.Temperature, 1e-9)
	require.Len(t, e.comp.lastReq.Messages, 1)
	assert.Equal(t, "hello", e.comp.lastReq.Messages[0].Content)
}

func TestCompletion_Temperature(t *testing.T) {
	msgs := []map[string]string{{"role": "user", "content": "x"}}

	t.Run("explicit zero is kept", func(t *testing.T) {
		e := newTestEnv()
		e.do(t, http.MethodPost, "/gpt/completion/", "alice-token", map[string]any{"messages": msgs, "temperature": 0})
		require.NotNil(t, e.comp.lastReq.Temperature)
		assert.Equal(t, 0.0, *e.comp.lastReq.Temperature)
	})

	t.Run("absent means default", func(t *testing.T) {
		e := newTestEnv()
		e.do(t, http.MethodPost, "/gpt/completion/", "alice-token", map[string]any{"messages": msgs})
		assert.Nil(t, e.comp.lastReq.Temperature)
	})

	t.Run("form zero is kept", func(t *testing.T) {
		e := newTestEnv()
		form := url.Values{"messages": {`[{"role":"user","content":"x"}]`}, "temperature": {"0"}}
		req := httptest.NewRequest(http.MethodPost, "/gpt/completion/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Token alice-token")
		require.Equal(t, common.CodeOK, e.serve(t, req).Code)
		require.NotNil(t, e.comp.lastReq.Temperature)
		assert.Equal(t, 0.0, *e.comp.lastReq.Temperature)
	})
}

func TestCompletion_FormMessages(t *testing.T) {
	e := newTestEnv()
	form := url.Values{"messages": {`[{"role":"user","content":"from form"}]`}}
	req := httptest.NewRequest(http.MethodPost, "/gpt/completion/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token alice-token")

	got := e.serve(t, req)
	require.Equal(t, common.CodeOK, got.Code)
	require.Len(t, e.comp.lastReq.Messages, 1)
	assert.Equal(t, "from form", e.comp.lastReq.Messages[0].Content)

	form = url.Values{"messages": {`not json`}}
	req = httptest.NewRequest(http.MethodPost, "/gpt/completion/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token alice-token")
	assert.Equal(t, common.CodeBadRequest, e.serve(t, req).Code)
}

func TestCompletion_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"empty messages", common.ErrEmptyMessages, common.CodeBadRequest, common.ErrEmptyMessages.Error()},
		{"empty prompt", common.ErrEmptyPrompt, common.CodeBadRequest, common.ErrEmptyPrompt.Error()},
		{"busy", common.ErrServiceBusy, common.CodeBadRequest, common.ErrServiceBusy.Error()},
		{"try later", common.ErrTryLater, common.CodeBadRequest, common.ErrTryLater.Error()},
		{"foreign conversation", common.ErrConversationForeign, common.CodeBadRequest, common.ErrConversationForeign.Error()},
		{"unexpected", errors.New("pq: connection reset"), common.CodeInternal, common.ErrorInternal.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			e.comp.err = tt.err
			got := e.do(t, http.MethodPost, "/gpt/completion/", "alice-token",
				map[string]any{"messages": []map[string]string{{"role": "user", "content": "x"}}})
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.msg, got.Msg)
			assert.Equal(t, "null", string(got.Data))
		})
	}
}

func TestMetrics_CompletionOutcomes(t *testing.T) {
	e := newTestEnv()
	msgs := map[string]any{"messages": []map[string]string{{"role": "user", "content": "x"}}}

	e.do(t, http.MethodPost, "/gpt/completion/", "alice-token", msgs)
	e.comp.err = common.ErrServiceBusy
	e.do(t, http.MethodPost, "/gpt/completion/", "alice-token", msgs)
	e.comp.err = common.ErrEmptyPrompt
	e.do(t, http.MethodPost, "/gpt/completion/", "alice-token", msgs)

	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `chatgate_completions_total{outcome="ok"} 1`)
	assert.Contains(t, body, `chatgate_completions_total{outcome="busy"} 1`)
	assert.Contains(t, body, `chatgate_completions_total{outcome="invalid"} 1`)
	assert.Contains(t, body, `chatgate_http_requests_total{method="POST",route="/gpt/completion/",status="200"} 3`)
}

func TestMetrics_Disabled(t *testing.T) {
	srv := NewServer("127.0.0.1:0", discardLogger(), Services{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatRecords(t *testing.T) {
	e := newTestEnv()
	e.recs.records = []*models.ChatRecord{
		{ID: 2, ConversationID: 7, Content: "reply", Role: models.RoleAssistant, CreatedAt: 20},
		{ID: 1, ConversationID: 7, Content: "hello", Role: models.RoleUser, CreatedAt: 10},
	}

	got := e.do(t, http.MethodPost, "/gpt/chat_records/", "alice-token", map[string]int{"page": 1, "limit": 5})
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, "alice", e.recs.userID)
	assert.Equal(t, 1, e.recs.page)
	assert.Equal(t, 5, e.recs.limit)
	assert.JSONEq(t, `[
		{"chat_id":2,"conversation":7,"content":"reply","create_at":20,"role":1},
		{"chat_id":1,"conversation":7,"content":"hello","create_at":10,"role":0}
	]`, string(got.Data))

	// no body: service defaults apply
	got = e.do(t, http.MethodPost, "/gpt/chat_records/", "alice-token", nil)
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, 0, e.recs.page)
	assert.Equal(t, 0, e.recs.limit)

	e.recs.records = nil
	got = e.do(t, http.MethodPost, "/gpt/chat_records/", "alice-token", nil)
	assert.Equal(t, "[]", string(got.Data))
}

func TestChatRecordsRange(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodPost, "/gpt/chat_records/range/", "alice-token", map[string]int64{"start": 10, "end": 20})
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, int64(10), e.recs.start)
	assert.Equal(t, int64(20), e.recs.end)

	got = e.do(t, http.MethodPost, "/gpt/chat_records/range/", "alice-token", map[string]int64{"start": 10})
	assert.Equal(t, common.CodeBadRequest, got.Code)

	got = e.do(t, http.MethodPost, "/gpt/chat_records/range/", "alice-token", map[string]int64{"start": 30, "end": 20})
	assert.Equal(t, common.CodeBadRequest, got.Code)
	assert.Equal(t, common.ErrInvalidRange.Error(), got.Msg)
}

func TestSharedKeyAndWindow(t *testing.T) {
	e := newTestEnv()

	e.grant.windowErr = common.ErrGrantNotFound
	assert.Equal(t, common.CodeGrantMissing, e.do(t, http.MethodGet, "/gpt/key/", "alice-token", nil).Code)
	assert.Equal(t, common.CodeGrantMissing, e.do(t, http.MethodGet, "/gpt/auth/", "alice-token", nil).Code)

	e.grant.windowErr = common.ErrGrantExpired
	assert.Equal(t, common.CodeGrantExpired, e.do(t, http.MethodGet, "/gpt/key/", "alice-token", nil).Code)
	assert.Equal(t, common.CodeGrantExpired, e.do(t, http.MethodGet, "/gpt/auth/", "alice-token", nil).Code)

	e.grant.windowErr = nil
	e.grant.key = "sk-shared"
	e.grant.window = &models.AuthGrant{BeganAt: fixedNow, EndAt: fixedNow.AddDate(0, 0, 1)}

	got := e.do(t, http.MethodGet, "/gpt/key/", "alice-token", nil)
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, `"sk-shared"`, string(got.Data))

	got = e.do(t, http.MethodGet, "/gpt/auth/", "alice-token", nil)
	require.Equal(t, common.CodeOK, got.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"began_at":%d,"end_at":%d}`,
		fixedNow.UnixMilli(), fixedNow.AddDate(0, 0, 1).UnixMilli()), string(got.Data))
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	e := newTestEnv()
	calls := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/admin/auth/", map[string]any{"identifier": "alice", "days": 3}},
		{http.MethodPost, "/admin/keys/", map[string]any{"secret": "sk"}},
		{http.MethodPut, "/admin/keys/1/live", map[string]any{"live": false}},
	}
	for _, c := range calls {
		assert.Equal(t, common.CodeUnauthorized, e.do(t, c.method, c.path, "", c.body).Code, c.path)
		assert.Equal(t, common.CodeForbidden, e.do(t, c.method, c.path, "alice-token", c.body).Code, c.path)
	}
	assert.Empty(t, e.grant.granted)
	assert.Empty(t, e.creds.added)
}

func TestAdminGrant(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodPost, "/admin/auth/", "admin-token", map[string]any{"identifier": "alice", "days": 3})
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, []string{"alice"}, e.grant.granted)
	assert.Equal(t, 3, e.grant.days)

	got = e.do(t, http.MethodPost, "/admin/auth/", "admin-token", map[string]any{"identifier": "alice", "days": 0})
	assert.Equal(t, common.CodeBadRequest, got.Code)
	assert.Equal(t, common.ErrInvalidDays.Error(), got.Msg)

	got = e.do(t, http.MethodPost, "/admin/auth/", "admin-token", map[string]any{"days": 1})
	assert.Equal(t, common.CodeBadRequest, got.Code)
}

func TestAdminKeys(t *testing.T) {
	e := newTestEnv()

	got := e.do(t, http.MethodPost, "/admin/keys/", "admin-token", map[string]any{"secret": "sk-1", "owner": "alice"})
	require.Equal(t, common.CodeOK, got.Code)
	assert.JSONEq(t, `{"id":1,"owner":"alice","live":true}`, string(got.Data))
	assert.NotContains(t, string(got.Data), "sk-1")

	got = e.do(t, http.MethodPost, "/admin/keys/", "admin-token", map[string]any{"secret": "sk-2", "owner": ""})
	require.Equal(t, common.CodeOK, got.Code)
	assert.Nil(t, e.creds.owner, "empty owner means shared")

	got = e.do(t, http.MethodPost, "/admin/keys/", "admin-token", map[string]any{"secret": ""})
	assert.Equal(t, common.CodeBadRequest, got.Code)

	got = e.do(t, http.MethodPut, "/admin/keys/1/live", "admin-token", map[string]any{"live": false})
	require.Equal(t, common.CodeOK, got.Code)
	assert.Equal(t, false, e.creds.live[1])

	assert.Equal(t, common.CodeBadRequest, e.do(t, http.MethodPut, "/admin/keys/x/live", "admin-token", map[string]any{"live": true}).Code)
	assert.Equal(t, common.CodeBadRequest, e.do(t, http.MethodPut, "/admin/keys/1/live", "admin-token", map[string]any{}).Code)
	assert.Equal(t, common.CodeNotFound, e.do(t, http.MethodPut, "/admin/keys/99/live", "admin-token", map[string]any{"live": true}).Code)
}

func TestCodeFor(t *testing.T) {
	code, msg := codeFor(fmt.Errorf("lookup: %w", common.ErrGrantExpired))
	assert.Equal(t, common.CodeGrantExpired, code)
	assert.Equal(t, common.ErrGrantExpired.Error(), msg)

	code, msg = codeFor(errors.New("secret detail"))
	assert.Equal(t, common.CodeInternal, code)
	assert.NotContains(t, msg, "secret")
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Token abc":     "abc",
		"Bearer abc":    "abc",
		"  token  abc ": "abc",
		"abc":           "abc",
		"Basic abc":     "",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, bearerToken(in), "%q", in)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_BadAddress(t *testing.T) {
	srv := NewServer("256.0.0.1:bad", discardLogger(), Services{})
	err := srv.Run(context.Background())
	assert.Error(t, err)
}
