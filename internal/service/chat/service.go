package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/filechat/backend/internal/model/chat"
	"github.com/zhouzirui/filechat/backend/internal/service/ai"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSendInFlight    = errors.New("a message is already being sent")
	ErrRateLimited     = errors.New("too many messages, slow down")
)

// Options tunes session lifetime and send throttling. Zero values disable the feature.
type Options struct {
	IdleTTL           time.Duration
	SendRatePerMinute int
	SendBurst         int
}

type sessionState struct {
	mu       sync.Mutex
	session  chat.Session
	sending  bool
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Service encapsulates conversation state management.
type Service struct {
	completer ai.Completer
	opts      Options
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewService bootstraps the in-memory chat service. Sessions are never persisted.
func NewService(completer ai.Completer, opts Options) *Service {
	return &Service{
		completer: completer,
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*sessionState),
	}
}

// CreateSession provisions an empty session in the Idle state.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	now := s.now().UTC()
	state := &sessionState{
		session: chat.Session{
			ID:         uuid.NewString(),
			State:      chat.StateIdle,
			Transcript: make([]chat.Turn, 0, 16),
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		lastSeen: now,
	}
	if s.opts.SendRatePerMinute > 0 {
		burst := s.opts.SendBurst
		if burst < 1 {
			burst = 1
		}
		state.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.opts.SendRatePerMinute)), burst)
	}

	s.mu.Lock()
	s.sessions[state.session.ID] = state
	s.mu.Unlock()

	logrus.WithField("session", state.session.ID).Debug("[chat] session created")
	return snapshot(state), nil
}

// GetSession retrieves a copy of the session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.lastSeen = s.now().UTC()
	return snapshot(state), nil
}

// LoadTranscript returns the turns recorded for the session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript, nil
}

// EndSession discards the session and everything it holds.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	logrus.WithField("session", sessionID).Debug("[chat] session ended")
	return nil
}

// SetInput overwrites the pending input text.
func (s *Service) SetInput(_ context.Context, sessionID, text string) (chat.PendingInput, error) {
	return s.mutatePending(sessionID, func(p *chat.PendingInput) {
		p.Text = text
	})
}

// AttachFile decodes raw as UTF-8, replacing invalid sequences, and makes it
// the session's attachment. It never fails on file content.
func (s *Service) AttachFile(_ context.Context, sessionID, name string, raw []byte) (chat.PendingInput, error) {
	attachment := &chat.Attachment{
		Name: name,
		Size: len(raw),
		Text: DecodeText(raw),
	}
	return s.mutatePending(sessionID, func(p *chat.PendingInput) {
		p.File = attachment
	})
}

// DetachFile drops the current attachment, if any.
func (s *Service) DetachFile(_ context.Context, sessionID string) (chat.PendingInput, error) {
	return s.mutatePending(sessionID, func(p *chat.PendingInput) {
		p.File = nil
	})
}

// Send submits the pending input. With nothing pending it is a no-op and
// returns Sent=false. Otherwise it blocks on exactly one backend call and
// appends the user turn and the bot turn together; backend failures become
// the bot turn's text. The attachment stays in place for later sends.
func (s *Service) Send(ctx context.Context, sessionID string) (chat.SendResult, error) {
	return s.SendText(ctx, sessionID, nil)
}

// SendText overwrites the pending text with *text, when text is non-nil, and
// sends in one step. No other input change can land between the two.
func (s *Service) SendText(ctx context.Context, sessionID string, text *string) (chat.SendResult, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.SendResult{}, err
	}

	state.mu.Lock()
	if state.sending {
		state.mu.Unlock()
		return chat.SendResult{}, ErrSendInFlight
	}
	if text != nil {
		state.session.Pending.Text = *text
		state.session.UpdatedAt = s.now().UTC()
	}
	pending := state.session.Pending
	if pending.Empty() {
		state.lastSeen = s.now().UTC()
		result := chat.SendResult{Session: snapshot(state)}
		state.mu.Unlock()
		return result, nil
	}
	if state.limiter != nil && !state.limiter.Allow() {
		state.mu.Unlock()
		return chat.SendResult{}, ErrRateLimited
	}
	state.sending = true
	state.session.State = chat.StateSending
	state.mu.Unlock()

	prompt := chat.BuildPrompt(pending.Text, pending.FileText())
	userTurn := chat.NewTurn(chat.SenderUser, pending.Text, s.now())

	logrus.WithFields(logrus.Fields{
		"session":    sessionID,
		"promptSize": len(prompt),
		"withFile":   pending.File != nil,
	}).Info("[chat] sending message")

	// once started, a send runs to completion even if the caller goes away
	reply := ai.Reply(context.WithoutCancel(ctx), s.completer, prompt)
	botTurn := chat.NewTurn(chat.SenderBot, reply, s.now())

	state.mu.Lock()
	defer state.mu.Unlock()
	state.session.Transcript = append(state.session.Transcript, userTurn, botTurn)
	state.session.Pending.Text = ""
	state.session.State = chat.StateIdle
	state.session.UpdatedAt = botTurn.CreatedAt
	state.lastSeen = botTurn.CreatedAt
	state.sending = false

	return chat.SendResult{
		Sent:    true,
		Prompt:  prompt,
		User:    &userTurn,
		Bot:     &botTurn,
		Session: snapshot(state),
	}, nil
}

// Touch marks the session as in use without changing it, keeping it from
// being discarded as idle.
func (s *Service) Touch(_ context.Context, sessionID string) error {
	state, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	state.lastSeen = s.now().UTC()
	state.mu.Unlock()
	return nil
}

func (s *Service) mutatePending(sessionID string, apply func(*chat.PendingInput)) (chat.PendingInput, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.PendingInput{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.sending {
		return chat.PendingInput{}, ErrSendInFlight
	}
	apply(&state.session.Pending)
	now := s.now().UTC()
	state.session.UpdatedAt = now
	state.lastSeen = now
	return state.session.Pending, nil
}

func (s *Service) lookup(sessionID string) (*sessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func snapshot(state *sessionState) chat.Session {
	out := state.session
	out.Transcript = make([]chat.Turn, len(state.session.Transcript))
	copy(out.Transcript, state.session.Transcript)
	if state.session.Pending.File != nil {
		file := *state.session.Pending.File
		out.Pending.File = &file
	}
	return out
}
