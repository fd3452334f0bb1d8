package roomstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/wager-quiz/internal/match"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
	"github.com/gokatarajesh/wager-quiz/pkg/http/ws"
)

// CreateRoomRequest is the body of POST /v1/rooms.
type CreateRoomRequest struct {
	RoomCode string             `json:"room_code"`
	Host     match.Player       `json:"host"`
	Settings match.GameSettings `json:"settings"`
}

// JoinRoomRequest is the body of POST /v1/rooms/{code}/players.
type JoinRoomRequest struct {
	Player match.Player `json:"player"`
}

// RoomResponse carries a room and, after create or join, the caller's room token.
type RoomResponse struct {
	Room  *match.Room `json:"room"`
	Token string      `json:"token,omitempty"`
}

// RemoteConfig configures the HTTP/websocket client of the room service.
type RemoteConfig struct {
	BaseURL      string
	Timeout      time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// RemoteStore talks to cmd/api. Mutations carry the room token handed out on create or join.
type RemoteStore struct {
	baseURL      string
	http         *http.Client
	dialer       *websocket.Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration
	logger       zerolog.Logger

	mu     sync.RWMutex
	tokens map[string]string
}

var _ Store = (*RemoteStore)(nil)

func NewRemoteStore(cfg RemoteConfig, logger zerolog.Logger) *RemoteStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 15 * time.Second
	}
	return &RemoteStore{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		dialer:       &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		reconnectMin: cfg.ReconnectMin,
		reconnectMax: cfg.ReconnectMax,
		logger:       logger.With().Str("component", "remote_room_store").Logger(),
		tokens:       make(map[string]string),
	}
}

// Token returns the room token held for code, if any.
func (s *RemoteStore) Token(code string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[code]
}

// SetToken installs a token obtained elsewhere, e.g. restored from the device profile.
func (s *RemoteStore) SetToken(code, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		delete(s.tokens, code)
		return
	}
	s.tokens[code] = token
}

func (s *RemoteStore) CreateRoom(ctx context.Context, code string, host match.Player, settings match.GameSettings) (*match.Room, error) {
	var resp RoomResponse
	req := CreateRoomRequest{RoomCode: code, Host: host, Settings: settings}
	if err := s.do(ctx, http.MethodPost, "/v1/rooms", "", req, &resp); err != nil {
		return nil, err
	}
	s.SetToken(code, resp.Token)
	return resp.Room, nil
}

func (s *RemoteStore) JoinRoom(ctx context.Context, code string, player match.Player) (*match.Room, error) {
	var resp RoomResponse
	if err := s.do(ctx, http.MethodPost, roomPath(code)+"/players", "", JoinRoomRequest{Player: player}, &resp); err != nil {
		return nil, err
	}
	s.SetToken(code, resp.Token)
	return resp.Room, nil
}

func (s *RemoteStore) FetchRoomState(ctx context.Context, code string) (*match.Room, error) {
	var resp RoomResponse
	if err := s.do(ctx, http.MethodGet, roomPath(code), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Room == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return resp.Room, nil
}

func (s *RemoteStore) LeaveRoom(ctx context.Context, code, playerID string) error {
	if err := s.do(ctx, http.MethodDelete, playerPath(code, playerID), code, nil, nil); err != nil {
		return err
	}
	s.SetToken(code, "")
	return nil
}

func (s *RemoteStore) UpdatePlayerState(ctx context.Context, code, playerID string, patch match.PlayerPatch) error {
	return s.do(ctx, http.MethodPatch, playerPath(code, playerID), code, patch, nil)
}

func (s *RemoteStore) UpdateRoom(ctx context.Context, code string, patch match.RoomPatch) error {
	return s.do(ctx, http.MethodPatch, roomPath(code), code, patch, nil)
}

// Subscribe keeps a websocket to /ws/rooms/{code} open, redialing with capped
// exponential backoff. onChange also fires after every reconnect since signals
// sent while disconnected are lost.
func (s *RemoteStore) Subscribe(ctx context.Context, code string, onChange func()) (Subscription, error) {
	if s.baseURL == "" {
		return nil, ErrNotConfigured
	}
	conn, err := s.dial(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("subscribe room changes: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go s.listen(listenCtx, code, conn, onChange, done)

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}), nil
}

func (s *RemoteStore) listen(ctx context.Context, code string, conn *websocket.Conn, onChange func(), done chan<- struct{}) {
	defer close(done)
	for {
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		readSignals(conn, onChange)
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn().Str("room_code", code).Msg("room feed dropped, reconnecting")
		next, err := s.redial(ctx, code)
		if err != nil {
			return
		}
		conn = next
		onChange()
	}
}

func readSignals(conn *websocket.Conn, onChange func()) {
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == ws.TypeRoomChanged {
			onChange()
		}
	}
}

func (s *RemoteStore) redial(ctx context.Context, code string) (*websocket.Conn, error) {
	backoff := retry.NewExponential(s.reconnectMin)
	backoff = retry.WithCappedDuration(s.reconnectMax, backoff)
	backoff = retry.WithJitterPercent(20, backoff)

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := s.dial(ctx, code)
		if err != nil {
			s.logger.Debug().Err(err).Str("room_code", code).Msg("room feed redial failed")
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func (s *RemoteStore) dial(ctx context.Context, code string) (*websocket.Conn, error) {
	target, err := s.feedURL(code)
	if err != nil {
		return nil, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
		}
		return nil, err
	}
	return conn, nil
}

func (s *RemoteStore) feedURL(code string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse room service url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/rooms/" + url.PathEscape(code)
	return u.String(), nil
}

func (s *RemoteStore) do(ctx context.Context, method, path, tokenFor string, in, out any) error {
	if s.baseURL == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tokenFor != "" {
		if token := s.Token(tokenFor); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// responseError maps the service's error envelope back onto the store sentinels.
func responseError(resp *http.Response) error {
	env := httperrors.Decode(resp.StatusCode, resp.Body)
	switch env.Error {
	case httperrors.ErrCodeRoomNotFound:
		return fmt.Errorf("%w: %s", ErrRoomNotFound, env.Message)
	case httperrors.ErrCodeDuplicateRoomCode:
		return fmt.Errorf("%w: %s", ErrDuplicateCode, env.Message)
	case httperrors.ErrCodePlayerNotFound:
		return fmt.Errorf("%w: %s", match.ErrPlayerNotFound, env.Message)
	case httperrors.ErrCodeInvalidRoomCode:
		return fmt.Errorf("%w: %s", match.ErrInvalidRoomCode, env.Message)
	case httperrors.ErrCodeValidationFailed:
		return fmt.Errorf("%w: %s", match.ErrInvalidSettings, env.Message)
	case httperrors.ErrCodeUnauthorized, httperrors.ErrCodeInvalidToken,
		httperrors.ErrCodeTokenExpired, httperrors.ErrCodeRoomMismatch, httperrors.ErrCodeNotRoomMember:
		return fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
	}
	return fmt.Errorf("room service %d %s: %s", resp.StatusCode, env.Error, env.Message)
}

func roomPath(code string) string {
	return "/v1/rooms/" + url.PathEscape(code)
}

func playerPath(code, playerID string) string {
	return roomPath(code) + "/players/" + url.PathEscape(playerID)
}
