package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

const uniqueViolation = "23505"

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// changePublisher is implemented by *Notifier.
type changePublisher interface {
	Publish(ctx context.Context, code string) error
	Subscribe(ctx context.Context, code string, onChange func()) (Subscription, error)
}

// PostgresStore keeps rooms in the rooms/room_players tables and signals writes over Redis.
type PostgresStore struct {
	pool     pgxPool
	notifier changePublisher
	logger   zerolog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wires the store. notifier may be nil, which disables Subscribe.
func NewPostgresStore(pool pgxPool, notifier changePublisher, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		notifier: notifier,
		logger:   logger.With().Str("component", "room_store").Logger(),
	}
}

const (
	insertRoomSQL = `
INSERT INTO rooms (room_code, host_id, phase, settings)
VALUES ($1, $2, $3, $4)`

	upsertPlayerSQL = `
INSERT INTO room_players (room_code, player_id, name, score, is_host, is_ready, used_bets, has_api_key, language)
VALUES ($1, $2, $3, 0, $4, false, '{}', $5, $6)
ON CONFLICT (room_code, player_id) DO UPDATE
SET name = EXCLUDED.name, has_api_key = EXCLUDED.has_api_key, language = EXCLUDED.language`

	selectRoomSQL = `
SELECT room_code, host_id, phase, settings, questions, question_index, final_question
FROM rooms WHERE room_code = $1`

	selectPlayersSQL = `
SELECT player_id, name, score, is_host, is_ready, current_bet, used_bets, has_api_key, language, answer
FROM room_players WHERE room_code = $1
ORDER BY is_host DESC, joined_at, player_id`
)

func (s *PostgresStore) CreateRoom(ctx context.Context, code string, host match.Player, settings match.GameSettings) (*match.Room, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create room: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRoomSQL, code, host.ID, string(match.RoomPhaseLobby), settingsJSON); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertPlayerSQL, code, host.ID, host.Name, true, host.HasAPIKey, host.Language); err != nil {
		return nil, fmt.Errorf("insert host: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create room: %w", err)
	}

	s.publish(ctx, code)
	return s.FetchRoomState(ctx, code)
}

func (s *PostgresStore) JoinRoom(ctx context.Context, code string, player match.Player) (*match.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin join room: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var hostID string
	err = tx.QueryRow(ctx, `SELECT host_id FROM rooms WHERE room_code = $1 FOR UPDATE`, code).Scan(&hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("lock room: %w", err)
	}

	if _, err := tx.Exec(ctx, upsertPlayerSQL, code, player.ID, player.Name, player.ID == hostID, player.HasAPIKey, player.Language); err != nil {
		return nil, fmt.Errorf("insert player: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit join room: %w", err)
	}

	s.publish(ctx, code)
	return s.FetchRoomState(ctx, code)
}

func (s *PostgresStore) FetchRoomState(ctx context.Context, code string) (*match.Room, error) {
	var row roomRow
	err := s.pool.QueryRow(ctx, selectRoomSQL, code).Scan(
		&row.Code, &row.HostID, &row.Phase, &row.Settings, &row.Questions, &row.QuestionIndex, &row.FinalQuestion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}

	rows, err := s.pool.Query(ctx, selectPlayersSQL, code)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	players, err := pgx.CollectRows(rows, scanPlayerRow)
	if err != nil {
		return nil, fmt.Errorf("scan players: %w", err)
	}

	return row.toRoom(players)
}

// LeaveRoom deletes the player row and the room once it is empty.
func (s *PostgresStore) LeaveRoom(ctx context.Context, code, playerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin leave room: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM room_players WHERE room_code = $1 AND player_id = $2`, code, playerID); err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rooms r WHERE r.room_code = $1 AND NOT EXISTS (SELECT 1 FROM room_players p WHERE p.room_code = r.room_code)`, code); err != nil {
		return fmt.Errorf("delete empty room: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit leave room: %w", err)
	}

	s.publish(ctx, code)
	return nil
}

func (s *PostgresStore) UpdatePlayerState(ctx context.Context, code, playerID string, patch match.PlayerPatch) error {
	sets, args := playerPatchSQL(patch)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, code, playerID)
	sql := fmt.Sprintf("UPDATE room_players SET %s WHERE room_code = $%d AND player_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", match.ErrPlayerNotFound, playerID)
	}

	s.publish(ctx, code)
	return nil
}

func (s *PostgresStore) UpdateRoom(ctx context.Context, code string, patch match.RoomPatch) error {
	sets, args, err := roomPatchSQL(patch)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, code)
	sql := fmt.Sprintf("UPDATE rooms SET %s WHERE room_code = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}

	s.publish(ctx, code)
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, code string, onChange func()) (Subscription, error) {
	if s.notifier == nil {
		return nil, ErrNotConfigured
	}
	return s.notifier.Subscribe(ctx, code, onChange)
}

// publish failures are logged only: the write is committed and pollers still converge.
func (s *PostgresStore) publish(ctx context.Context, code string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, code); err != nil {
		s.logger.Warn().Err(err).Str("room_code", code).Msg("room change not published")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
