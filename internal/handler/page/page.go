package page

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/handler/upload"
	"github.com/zhouzirui/filechat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/filechat/backend/internal/service/chat"
)

// SessionCookie binds a browser to its chat session.
const SessionCookie = "filechat_session"

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler 渲染聊天页面并处理表单提交。
type Handler struct {
	chatSvc        *chatService.Service
	botLabel       string
	maxUploadBytes int64
}

// New 创建页面处理器。botLabel 用于标注机器人回复，例如 "Gemini"。
func New(chatSvc *chatService.Service, botLabel string, maxUploadBytes int64) *Handler {
	if botLabel == "" {
		botLabel = string(chat.SenderBot)
	}
	return &Handler{
		chatSvc:        chatSvc,
		botLabel:       botLabel,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/send", h.handleSend)
	r.Post("/file/clear", h.handleClearFile)
}

type pageData struct {
	BotLabel string
	Turns    []chat.Turn
	Pending  chat.PendingInput
	Accept   string
	Error    string
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(w, r)
	if err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	data := pageData{
		BotLabel: h.botLabel,
		Turns:    session.Transcript,
		Pending:  session.Pending,
		Accept:   chatService.AcceptAttr(),
		Error:    r.URL.Query().Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		logrus.WithError(err).Error("[page] render failed")
	}
}

// handleSend 处理表单：先附加上传的文件（如有），再设置输入文本并发送。
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(w, r)
	if err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	file, _, err := upload.Read(w, r, "file", h.maxUploadBytes)
	switch {
	case errors.Is(err, upload.ErrMissing):
		// no file selected
	case err != nil:
		redirectWithError(w, r, err.Error())
		return
	default:
		if _, err := h.chatSvc.AttachFile(ctx, session.ID, file.Name, file.Data); err != nil {
			redirectWithError(w, r, err.Error())
			return
		}
	}

	message := r.FormValue("message")
	if _, err := h.chatSvc.SendText(ctx, session.ID, &message); err != nil {
		redirectWithError(w, r, err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleClearFile(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(w, r)
	if err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	if _, err := h.chatSvc.DetachFile(r.Context(), session.ID); err != nil {
		redirectWithError(w, r, err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// session 返回 cookie 对应的会话；cookie 缺失或会话已过期时创建新会话。
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (chat.Session, error) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		session, err := h.chatSvc.GetSession(r.Context(), cookie.Value)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, chatService.ErrSessionNotFound) {
			return chat.Session{}, err
		}
	}

	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		return chat.Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logrus.WithField("session", session.ID).Info("[page] new browser session")
	return session, nil
}

func redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	message = strings.TrimSpace(message)
	http.Redirect(w, r, "/?error="+url.QueryEscape(message), http.StatusSeeOther)
}
