package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashyapanjali/periskope/internal/api/apitest"
	"github.com/kashyapanjali/periskope/internal/domain"
)

type session struct {
	t     *testing.T
	base  string
	token string
	id    string
}

func (s *session) do(method, path string, body any) *http.Response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.base+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// register signs up, signs in and creates the caller's profile row.
func register(t *testing.T, d *apitest.Daemon, email string) *session {
	t.Helper()
	s := &session{t: t, base: d.URL()}
	resp := s.do(http.MethodPost, "/auth/signup", map[string]any{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodPost, "/auth/token", map[string]any{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decode[struct {
		AccessToken string           `json:"access_token"`
		Identity    *domain.Identity `json:"identity"`
	}](t, resp)
	s.token, s.id = tok.AccessToken, tok.Identity.ID

	resp = s.do(http.MethodPost, "/rest/users", domain.User{ID: s.id, Email: email})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return s
}

func createChat(t *testing.T, s *session, name string, members ...string) domain.Chat {
	t.Helper()
	resp := s.do(http.MethodPost, "/rest/chats", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	chat := decode[domain.Chat](t, resp)
	for _, uid := range append([]string{s.id}, members...) {
		resp = s.do(http.MethodPost, "/rest/chat_participants", map[string]string{"chat_id": chat.ID, "user_id": uid})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	return chat
}

func TestAuthFlow(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	anon := &session{t: t, base: d.URL()}

	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/auth/user", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/rest/chats", nil).StatusCode)

	a := register(t, d, "a@x.io")
	resp := a.do(http.MethodGet, "/auth/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, a.id, decode[domain.Identity](t, resp).ID)

	dup := anon.do(http.MethodPost, "/auth/signup", map[string]any{"email": "a@x.io", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	bad := anon.do(http.MethodPost, "/auth/token", map[string]any{"email": "a@x.io", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/auth/logout", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/auth/user", nil).StatusCode)
}

func TestSignupThrottleReturns429(t *testing.T) {
	d := apitest.New(t, apitest.Options{SignupBurst: 1})
	anon := &session{t: t, base: d.URL()}

	first := anon.do(http.MethodPost, "/auth/signup", map[string]any{"email": "a@x.io", "password": "secret1"})
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := anon.do(http.MethodPost, "/auth/signup", map[string]any{"email": "b@x.io", "password": "secret1"})
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
}

func TestChatsAreScopedToParticipants(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	b := register(t, d, "b@x.io")
	c := register(t, d, "c@x.io")

	shared := createChat(t, a, "Support", b.id)
	createChat(t, c, "Private")

	chats := decode[[]domain.Chat](t, b.do(http.MethodGet, "/rest/chats", nil))
	require.Len(t, chats, 1)
	assert.Equal(t, shared.ID, chats[0].ID)

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/rest/chats/"+shared.ID, nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/rest/chats/"+shared.ID+"/messages", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden,
		c.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": shared.ID, "content": "hi"}).StatusCode)

	parts := decode[[]domain.Participant](t, a.do(http.MethodGet, "/rest/chats/"+shared.ID+"/participants", nil))
	assert.Len(t, parts, 2)
}

func TestDeleteChatCreatorOnly(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	b := register(t, d, "b@x.io")
	chat := createChat(t, a, "Support", b.id)

	assert.Equal(t, http.StatusForbidden, b.do(http.MethodDelete, "/rest/chats/"+chat.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/rest/chats/"+chat.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/rest/chats/"+chat.ID, nil).StatusCode)
}

func TestParticipantErrors(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	chat := createChat(t, a, "Support")

	dup := a.do(http.MethodPost, "/rest/chat_participants", map[string]string{"chat_id": chat.ID, "user_id": a.id})
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	ghost := a.do(http.MethodPost, "/rest/chat_participants", map[string]string{"chat_id": chat.ID, "user_id": "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, ghost.StatusCode)

	missing := a.do(http.MethodPost, "/rest/chat_participants", map[string]string{"chat_id": "nope", "user_id": a.id})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestMessagesAndChatUpdate(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	chat := createChat(t, a, "Support")

	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": chat.ID, "content": "  "}).StatusCode)

	resp := a.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": chat.ID, "content": "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decode[domain.Message](t, resp)
	assert.Equal(t, a.id, msg.SenderID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "a@x.io", msg.Sender.Email)

	last := "hello"
	resp = a.do(http.MethodPatch, "/rest/chats/"+chat.ID, domain.ChatUpdate{LastMessage: &last, LastActivityAt: &msg.CreatedAt})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.Chat](t, resp)
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, "hello", *updated.LastMessage)

	msgs := decode[[]domain.Message](t, a.do(http.MethodGet, "/rest/chats/"+chat.ID+"/messages", nil))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestChatFiltersOverHTTP(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")

	resp := a.do(http.MethodPost, "/rest/labels", map[string]string{"name": "vip", "color": "#f00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	label := decode[domain.Label](t, resp)

	tagged := createChat(t, a, "Billing")
	createChat(t, a, "Support")
	resp = a.do(http.MethodPatch, "/rest/chats/"+tagged.ID, domain.ChatUpdate{LabelID: &label.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	byLabel := decode[[]domain.Chat](t, a.do(http.MethodGet, "/rest/chats?label_id="+label.ID, nil))
	require.Len(t, byLabel, 1)
	assert.Equal(t, tagged.ID, byLabel[0].ID)

	bySearch := decode[[]domain.Chat](t, a.do(http.MethodGet, "/rest/chats?search=supp", nil))
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Support", bySearch[0].Name)
}

func upload(t *testing.T, d *apitest.Daemon, token, key, ctype, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, d.URL()+"/storage/attachments/"+key, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAttachmentRoundTrip(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	chat := createChat(t, a, "Support")

	resp := upload(t, d, a.token, chat.ID+"/note.txt", "", "file body")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	att := decode[domain.Attachment](t, resp)
	assert.True(t, strings.HasSuffix(att.URL, "/storage/attachments/"+chat.ID+"/note.txt"), att.URL)
	assert.True(t, strings.HasPrefix(att.MimeType, "text/plain"), att.MimeType)

	get, err := http.Get(att.URL)
	require.NoError(t, err)
	defer func() { _ = get.Body.Close() }()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.True(t, strings.HasPrefix(get.Header.Get("Content-Type"), "text/plain"))
	assert.Equal(t, "nosniff", get.Header.Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusUnauthorized, upload(t, d, "", chat.ID+"/x.txt", "", "x").StatusCode)
}

func TestAttachmentUploadIsScopedAndWriteOnce(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	b := register(t, d, "b@x.io")
	chat := createChat(t, a, "Support")

	require.Equal(t, http.StatusCreated, upload(t, d, a.token, chat.ID+"/doc.txt", "", "original").StatusCode)

	assert.Equal(t, http.StatusForbidden, upload(t, d, b.token, chat.ID+"/doc.txt", "", "replaced").StatusCode)
	assert.Equal(t, http.StatusForbidden, upload(t, d, b.token, chat.ID+"/other.txt", "", "x").StatusCode)
	assert.Equal(t, http.StatusConflict, upload(t, d, a.token, chat.ID+"/doc.txt", "", "replaced").StatusCode)
	assert.Equal(t, http.StatusBadRequest, upload(t, d, a.token, "loose.txt", "", "x").StatusCode)

	get, err := http.Get(d.URL() + "/storage/attachments/" + chat.ID + "/doc.txt")
	require.NoError(t, err)
	defer func() { _ = get.Body.Close() }()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, "original", string(body))
}

func TestAttachmentDownloadNeverRendersMarkup(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	chat := createChat(t, a, "Support")

	resp := upload(t, d, a.token, chat.ID+"/page.html", "text/html", "<script>alert(1)</script>")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	att := decode[domain.Attachment](t, resp)

	get, err := http.Get(att.URL)
	require.NoError(t, err)
	defer func() { _ = get.Body.Close() }()
	assert.Equal(t, "application/octet-stream", get.Header.Get("Content-Type"))
	assert.Equal(t, "attachment", get.Header.Get("Content-Disposition"))
}

func TestRealtimeFiltersByMembership(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	b := register(t, d, "b@x.io")
	c := register(t, d, "c@x.io")
	shared := createChat(t, a, "Support", b.id)
	private := createChat(t, c, "Private")

	wsURL := "ws" + strings.TrimPrefix(d.URL(), "http") + "/realtime?table=messages&events=INSERT&access_token=" + b.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return d.Realtime.Active() == 1 }, 2*time.Second, 10*time.Millisecond)

	c.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": private.ID, "content": "secret"})
	a.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": shared.ID, "content": "hello"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt domain.ChangeEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, domain.ChangeInsert, evt.Kind)
	assert.Equal(t, domain.TableMessages, evt.Table)
	msg, err := evt.Message()
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, shared.ID, msg.ChatID)
	assert.Nil(t, msg.Sender)
}

func TestRealtimeDeliversRowsWrittenRightAfterDial(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	chat := createChat(t, a, "Support")
	before := d.Bus.Subscribers()

	wsURL := "ws" + strings.TrimPrefix(d.URL(), "http") + "/realtime?table=messages&events=INSERT&access_token=" + a.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	a.do(http.MethodPost, "/rest/messages", map[string]string{"chat_id": chat.ID, "content": "first"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt domain.ChangeEvent
	require.NoError(t, conn.ReadJSON(&evt))
	msg, err := evt.Message()
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)
	assert.Equal(t, before+1, d.Bus.Subscribers())
}

func TestRealtimeFailedUpgradeReleasesSubscription(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	before := d.Bus.Subscribers()

	resp := a.do(http.MethodGet, "/realtime?table=messages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, before, d.Bus.Subscribers())
}

func TestRealtimeRejectsBadRequests(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	a := register(t, d, "a@x.io")
	base := "ws" + strings.TrimPrefix(d.URL(), "http") + "/realtime"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?table=messages", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?table=secrets&access_token="+a.token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?events=TRUNCATE&access_token="+a.token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	d := apitest.New(t, apitest.Options{})
	register(t, d, "a@x.io")

	resp, err := http.Get(d.URL() + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	h := decode[struct {
		Status string `json:"status"`
		Stats  struct {
			Users int `json:"users"`
		} `json:"stats"`
	}](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Stats.Users)
}
