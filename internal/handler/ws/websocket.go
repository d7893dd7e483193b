package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/filechat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	sendQueueSize = 8
)

// Handler 基于 WebSocket 的会话通道，每个连接独占一个会话。
type Handler struct {
	chatSvc        *chatservice.Service
	maxUploadBytes int64
	upgrader       websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, maxUploadBytes int64) *Handler {
	return &Handler{
		chatSvc:        chatSvc,
		maxUploadBytes: maxUploadBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 设置输入或随发送携带的文本
type TextMessage struct {
	Text *string `json:"text"`
}

// FileMessage 上传附件，content 为 base64 编码的原始字节
type FileMessage struct {
	FileName string `json:"fileName"`
	Content  []byte `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connection struct {
	conn      *websocket.Conn
	sessionID string
	writeMu   sync.Mutex

	// sends are processed one at a time in arrival order
	sendQueue chan *string
	worker    sync.WaitGroup
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.chatSvc.CreateSession(ctx)
	if err != nil {
		logrus.WithError(err).Error("[websocket] create session failed")
		return
	}

	c := &connection{conn: conn, sessionID: session.ID, sendQueue: make(chan *string, sendQueueSize)}
	log := logrus.WithField("session", session.ID)
	log.Info("[websocket] new connection")

	c.worker.Add(1)
	go h.sendLoop(ctx, c)

	defer func() {
		cancel()
		close(c.sendQueue)
		c.worker.Wait()
		if err := h.chatSvc.EndSession(context.Background(), session.ID); err != nil {
			log.WithError(err).Debug("[websocket] end session")
		}
		log.Info("[websocket] connection closed")
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err := h.chatSvc.Touch(ctx, session.ID); err != nil {
			log.WithError(err).Debug("[websocket] touch session")
		}
		return nil
	})

	go c.pingLoop(ctx)

	c.write("connected", session)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("[websocket] read error")
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, c, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, msg *inboundMessage) {
	switch msg.Type {
	case "input":
		h.handleInput(ctx, c, msg.Data)
	case "file":
		h.handleFile(ctx, c, msg.Data)
	case "clearFile":
		pending, err := h.chatSvc.DetachFile(ctx, c.sessionID)
		c.pendingOrError(pending, err)
	case "send":
		h.handleSend(c, msg.Data)
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) handleInput(ctx context.Context, c *connection, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil || text.Text == nil {
		c.sendError("invalid input payload")
		return
	}
	pending, err := h.chatSvc.SetInput(ctx, c.sessionID, *text.Text)
	c.pendingOrError(pending, err)
}

func (h *Handler) handleFile(ctx context.Context, c *connection, raw json.RawMessage) {
	var file FileMessage
	if err := json.Unmarshal(raw, &file); err != nil {
		c.sendError("invalid file payload")
		return
	}
	if err := chatservice.CheckFileName(file.FileName); err != nil {
		c.sendError(err.Error())
		return
	}
	if h.maxUploadBytes > 0 && int64(len(file.Content)) > h.maxUploadBytes {
		c.sendError("file too large")
		return
	}

	pending, err := h.chatSvc.AttachFile(ctx, c.sessionID, file.FileName, file.Content)
	c.pendingOrError(pending, err)
}

// handleSend 将发送请求放入连接的发送队列；读循环继续处理心跳。
// 文本与发送在服务内原子完成，连续的发送按到达顺序依次执行。
func (h *Handler) handleSend(c *connection, raw json.RawMessage) {
	var text TextMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &text); err != nil {
			c.sendError("invalid send payload")
			return
		}
	}

	select {
	case c.sendQueue <- text.Text:
	default:
		c.sendError("too many messages queued, slow down")
	}
}

// sendLoop 串行处理发送队列，连接关闭后丢弃尚未开始的发送。
func (h *Handler) sendLoop(ctx context.Context, c *connection) {
	defer c.worker.Done()

	for text := range c.sendQueue {
		if ctx.Err() != nil {
			continue
		}
		result, err := h.chatSvc.SendText(ctx, c.sessionID, text)
		if err != nil {
			c.sendError(err.Error())
			continue
		}
		if !result.Sent {
			c.write("noop", nil)
			continue
		}
		c.write("turns", []chat.Turn{*result.User, *result.Bot})
		c.write("pending", result.Session.Pending)
	}
}

func (c *connection) pendingOrError(pending chat.PendingInput, err error) {
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.write("pending", pending)
}

func (c *connection) write(msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		logrus.WithError(err).WithField("session", c.sessionID).Debug("[websocket] write failed")
	}
}

func (c *connection) sendError(message string) {
	c.write("error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
