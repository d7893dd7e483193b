package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/filechat/backend/internal/model/chat"
	"github.com/zhouzirui/filechat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/filechat/backend/internal/service/chat"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func setupRouter(completer ai.Completer, maxUpload int64) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(completer, chatservice.Options{})
	handler := New(chatSvc, maxUpload)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func uploadRequest(t *testing.T, path, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var session chat.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	require.NotEmpty(t, session.ID)
	assert.Equal(t, chat.StateIdle, session.State)
	return session.ID
}

func TestCreateAndGetSession(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var session chat.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	assert.Equal(t, id, session.ID)
	assert.Empty(t, session.Transcript)
}

func TestUnknownSessionIs404(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/session/missing"},
		{http.MethodDelete, "/session/missing"},
		{http.MethodPost, "/session/missing/send"},
		{http.MethodGet, "/session/missing/transcript"},
		{http.MethodDelete, "/session/missing/file"},
	} {
		resp := doJSON(t, r, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code, tc.method+" "+tc.path)
	}
}

func TestSendWithAttachedFile(t *testing.T) {
	completer := &fakeCompleter{reply: "Revenue grew 10% in Q1."}
	r, _ := setupRouter(completer, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodPut, "/session/"+id+"/input", map[string]string{"text": "Summarize this"})
	require.Equal(t, http.StatusOK, resp.Code)

	upload := httptest.NewRecorder()
	r.ServeHTTP(upload, uploadRequest(t, "/session/"+id+"/file", "q1.txt", []byte("Q1 revenue grew 10%.")))
	require.Equal(t, http.StatusOK, upload.Code)
	assert.JSONEq(t, `{"name":"q1.txt","size":20,"chars":20}`, upload.Body.String())

	resp = doJSON(t, r, http.MethodPost, "/session/"+id+"/send", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var result chat.SendResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Sent)
	assert.Equal(t, "Revenue grew 10% in Q1.", result.Bot.Text)
	assert.Equal(t, []string{"Summarize this\n\nFile content:\nQ1 revenue grew 10%."}, completer.prompts)
	assert.NotContains(t, resp.Body.String(), "File content:", "prompt is not echoed back")

	resp = doJSON(t, r, http.MethodGet, "/session/"+id+"/transcript", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var transcript struct {
		Turns []chat.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &transcript))
	require.Len(t, transcript.Turns, 2)
	assert.Equal(t, chat.SenderUser, transcript.Turns[0].Sender)
	assert.Equal(t, chat.SenderBot, transcript.Turns[1].Sender)
}

func TestSendInlineTextAndNoop(t *testing.T) {
	completer := &fakeCompleter{reply: "pong"}
	r, _ := setupRouter(completer, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+id+"/send", map[string]string{"text": "ping"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"sent":true`)

	resp = doJSON(t, r, http.MethodPost, "/session/"+id+"/send", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"sent":false`)
	assert.Len(t, completer.prompts, 1)
}

func TestSendBackendFailureIsBotTurn(t *testing.T) {
	completer := &fakeCompleter{err: &ai.BackendError{StatusCode: 401, Body: "invalid key"}}
	r, _ := setupRouter(completer, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+id+"/send", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)

	var result chat.SendResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Contains(t, result.Bot.Text, "401")
	assert.Contains(t, result.Bot.Text, "invalid key")
}

func TestAttachRejectsUnsupportedExtension(t *testing.T) {
	r, svc := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "/session/"+id+"/file", "photo.png", []byte{0x89, 'P', 'N', 'G'}))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Code)

	session, err := svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, session.Pending.File)
}

func TestAttachInvalidUTF8NeverFails(t *testing.T) {
	r, svc := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "/session/"+id+"/file", "scan.pdf", []byte("ab\xffcd")))
	require.Equal(t, http.StatusOK, resp.Code)

	session, err := svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session.Pending.File)
	assert.Equal(t, "ab�cd", session.Pending.File.Text)
}

func TestAttachRespectsUploadLimit(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 64)
	id := createSession(t, r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "/session/"+id+"/file", "big.txt", []byte(strings.Repeat("x", 4096))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestAttachMissingFileField(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+id+"/file", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDetachFileAndEndSession(t *testing.T) {
	r, svc := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	upload := httptest.NewRecorder()
	r.ServeHTTP(upload, uploadRequest(t, "/session/"+id+"/file", "a.csv", []byte("a,b")))
	require.Equal(t, http.StatusOK, upload.Code)

	resp := doJSON(t, r, http.MethodDelete, "/session/"+id+"/file", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	session, err := svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, session.Pending.File)

	resp = doJSON(t, r, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = doJSON(t, r, http.MethodGet, "/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSetInputRequiresText(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)
	id := createSession(t, r)

	resp := doJSON(t, r, http.MethodPut, "/session/"+id+"/input", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPut, "/session/"+id+"/input", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(chatservice.ErrSessionNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(chatservice.ErrSendInFlight))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(chatservice.ErrRateLimited))
	assert.Equal(t, http.StatusUnsupportedMediaType, StatusFor(chatservice.ErrUnsupportedFile))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}

func TestSessionSnapshotOmitsFileText(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	r, _ := setupRouter(completer, 0)
	id := createSession(t, r)

	upload := httptest.NewRecorder()
	r.ServeHTTP(upload, uploadRequest(t, "/session/"+id+"/file", "big.csv", []byte("row-one,row-two")))
	require.Equal(t, http.StatusOK, upload.Code)

	resp := doJSON(t, r, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "big.csv")
	assert.NotContains(t, resp.Body.String(), "row-one")

	resp = doJSON(t, r, http.MethodPost, "/session/"+id+"/send", map[string]string{"text": "go"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "row-one")
	assert.Equal(t, []string{"go\n\nFile content:\nrow-one,row-two"}, completer.prompts)
}
