package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/handler/upload"
	chatService "github.com/zhouzirui/filechat/backend/internal/service/chat"
	"github.com/zhouzirui/filechat/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc        *chatService.Service
	maxUploadBytes int64
}

// New 创建聊天处理器。maxUploadBytes 为 0 表示不限制上传大小。
func New(chatSvc *chatService.Service, maxUploadBytes int64) *Handler {
	return &Handler{
		chatSvc:        chatSvc,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(s chi.Router) {
		s.Get("/", h.handleGetSession)
		s.Delete("/", h.handleEndSession)
		s.Put("/input", h.handleSetInput)
		s.Post("/file", h.handleAttachFile)
		s.Delete("/file", h.handleDetachFile)
		s.Post("/send", h.handleSend)
		s.Get("/transcript", h.handleTranscript)
	})
}

type inputPayload struct {
	Text *string `json:"text"`
}

type attachmentSummary struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Chars int    `json:"chars"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var payload inputPayload
	if err := utils.DecodeJSON(r, &payload, false); err != nil || payload.Text == nil {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	pending, err := h.chatSvc.SetInput(r.Context(), chi.URLParam(r, "sessionID"), *payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, pending)
}

// handleAttachFile 读取上传文件并作为会话附件。内容按 UTF-8 有损解码，从不因内容失败。
func (h *Handler) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	file, status, err := upload.Read(w, r, "file", h.maxUploadBytes)
	if err != nil {
		utils.RespondError(w, status, err.Error())
		return
	}

	pending, err := h.chatSvc.AttachFile(r.Context(), sessionID, file.Name, file.Data)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{"session": sessionID, "file": file.Name, "bytes": len(file.Data)}).Info("[chat] file attached")
	utils.RespondJSON(w, http.StatusOK, attachmentSummary{
		Name:  pending.File.Name,
		Size:  pending.File.Size,
		Chars: len([]rune(pending.File.Text)),
	})
}

func (h *Handler) handleDetachFile(w http.ResponseWriter, r *http.Request) {
	if _, err := h.chatSvc.DetachFile(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSend 发送待发送内容。请求体可选地携带 text，覆盖输入与发送在服务内一步完成。
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload inputPayload
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.chatSvc.SendText(r.Context(), sessionID, payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// StatusFor maps chat service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrSendInFlight):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chatService.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("[chat] request failed")
	}
	utils.RespondError(w, status, err.Error())
}
