// Package directives connects to a remote assistant over a websocket. It
// receives ExpectSpeech directives and sends playback commands back.
package directives

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hotmic/internal/domain"
	xlog "hotmic/internal/log"
)

var (
	ErrNotConfigured = errors.New("directive link URL is not configured")
	ErrNotConnected  = errors.New("directive link is not connected")
)

const defaultReconnectDelay = 2 * time.Second

// Config controls the directive websocket.
type Config struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
}

// Handler receives directives from the remote side.
type Handler interface {
	ExpectSpeech(ctx context.Context)
}

// Link keeps a directive connection open and doubles as the playback handler:
// transport commands are forwarded as PlaybackCommand events.
type Link struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	session *linkSession

	playing atomic.Bool
}

func NewLink(cfg Config) *Link {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Link{cfg: cfg, logger: xlog.WithComponent("directives")}
}

// Run connects and reconnects until ctx is done. It returns nil on
// cancellation and ErrNotConfigured when no URL is set.
func (l *Link) Run(ctx context.Context, handler Handler) error {
	if strings.TrimSpace(l.cfg.URL) == "" {
		return ErrNotConfigured
	}
	for {
		session, err := l.connect(ctx, handler)
		if err == nil {
			l.logger.Info().Str("event", "link.connected").Msg("directive link connected")
			err = session.Wait()
			l.setSession(nil)
			if ctx.Err() == nil {
				l.logger.Warn().Err(err).Str("event", "link.disconnected").Msg("directive link closed")
			}
		} else if ctx.Err() == nil {
			l.logger.Warn().Err(err).Str("event", "link.dial_failed").Msg("directive link unavailable")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func (l *Link) connect(ctx context.Context, handler Handler) (*linkSession, error) {
	wsURL, err := buildLinkURL(l.cfg.URL)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if l.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+l.cfg.Token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directive websocket: %w", err)
	}

	session := newLinkSession(ctx, conn, handler, l)
	l.setSession(session)

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

func (l *Link) setSession(session *linkSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = session
}

func (l *Link) current() *linkSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Execute sends a playback command to the remote player.
func (l *Link) Execute(ctx context.Context, action domain.ControlAction) error {
	session := l.current()
	if session == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(outboundMessage{
		Type:   "PlaybackCommand",
		ID:     uuid.NewString(),
		Action: string(action),
	})
	if err != nil {
		return fmt.Errorf("failed to encode playback command: %w", err)
	}
	if err := session.Send(ctx, payload); err != nil {
		return err
	}

	switch action {
	case domain.ActionPlay:
		l.playing.Store(true)
	case domain.ActionPause:
		l.playing.Store(false)
	}
	return nil
}

// IsPlaying reports the last known playback state.
func (l *Link) IsPlaying() bool {
	return l.playing.Load()
}

// Connected reports whether a session is currently open.
func (l *Link) Connected() bool {
	return l.current() != nil
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Playing bool   `json:"playing"`
}

type outboundMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Action string `json:"action,omitempty"`
}

type linkSession struct {
	ctx     context.Context
	conn    *websocket.Conn
	handler Handler
	link    *Link

	outbound chan []byte
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func newLinkSession(ctx context.Context, conn *websocket.Conn, handler Handler, link *Link) *linkSession {
	s := &linkSession{
		ctx:      ctx,
		conn:     conn,
		handler:  handler,
		link:     link,
		outbound: make(chan []byte, 16),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *linkSession) Send(ctx context.Context, payload []byte) error {
	select {
	case s.outbound <- payload:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *linkSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *linkSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *linkSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *linkSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *linkSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case payload := <-s.outbound:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.setErr(fmt.Errorf("failed to send playback command: %w", err))
				return
			}
		case <-s.readDone:
			return
		}
	}
}

func (s *linkSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.setErr(fmt.Errorf("failed to read directive: %w", err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.link.logger.Debug().Err(err).Str("event", "directive.malformed").Msg("ignoring malformed directive")
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "ExpectSpeech"):
			if s.handler != nil {
				s.handler.ExpectSpeech(s.ctx)
			}
		case strings.EqualFold(msg.Type, "PlaybackState"):
			s.link.playing.Store(msg.Playing)
		case strings.EqualFold(msg.Type, "Error"):
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "directive service returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		default:
			s.link.logger.Debug().Str("event", "directive.ignored").Str("type", msg.Type).Msg("unsupported directive")
		}
	}
}

func buildLinkURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "", ErrNotConfigured
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	linkURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid directive URL: %w", err)
	}
	if linkURL.Scheme != "ws" && linkURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid directive URL scheme %q", linkURL.Scheme)
	}
	return linkURL.String(), nil
}
