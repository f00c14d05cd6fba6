package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"trivia-arena/internal/models"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createLobbiesTable := `
	CREATE TABLE IF NOT EXISTS lobbies (
		code CHAR(6) PRIMARY KEY,
		host_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'waiting',
		settings JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE,
		ended_at TIMESTAMP WITH TIME ZONE
	);`

	createPlayersTable := `
	CREATE TABLE IF NOT EXISTS lobby_players (
		lobby_code CHAR(6) NOT NULL REFERENCES lobbies(code) ON DELETE CASCADE,
		player_id VARCHAR(64) NOT NULL,
		position INTEGER NOT NULL,
		username VARCHAR(255) NOT NULL,
		character_name VARCHAR(64) NOT NULL DEFAULT '',
		character_level INTEGER NOT NULL DEFAULT 1,
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		is_ready BOOLEAN NOT NULL DEFAULT FALSE,
		is_connected BOOLEAN NOT NULL DEFAULT TRUE,
		joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (lobby_code, player_id)
	);`

	createProgressTable := `
	CREATE TABLE IF NOT EXISTS character_progress (
		player_id VARCHAR(64) PRIMARY KEY,
		level INTEGER NOT NULL DEFAULT 1,
		experience_points BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_lobby_players_code ON lobby_players(lobby_code);
	CREATE INDEX IF NOT EXISTS idx_lobbies_status ON lobbies(status);
	`

	for _, stmt := range []string{createLobbiesTable, createPlayersTable, createProgressTable, createIndexes} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) SaveLobby(ctx context.Context, lobby *models.Lobby) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	settingsJSON, err := json.Marshal(lobby.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `
		INSERT INTO lobbies (code, host_id, status, settings, created_at, updated_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			host_id = EXCLUDED.host_id,
			status = EXCLUDED.status,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at
	`
	_, err = tx.ExecContext(ctx, query,
		lobby.Code,
		lobby.HostID,
		string(lobby.Status),
		settingsJSON,
		lobby.CreatedAt,
		lobby.UpdatedAt,
		lobby.StartedAt,
		lobby.EndedAt,
	)
	if err != nil {
		return err
	}

	// Membership is rewritten wholesale; join order lives in position.
	if _, err := tx.ExecContext(ctx, "DELETE FROM lobby_players WHERE lobby_code = $1", lobby.Code); err != nil {
		return err
	}
	for i, player := range lobby.Players {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO lobby_players (lobby_code, player_id, position, username, character_name, character_level, is_host, is_ready, is_connected, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, lobby.Code, player.ID, i, player.Username, player.Character, player.CharacterLevel,
			player.IsHost, player.IsReady, player.IsConnected, player.JoinedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetLobby(ctx context.Context, code string) (*models.Lobby, error) {
	lobbyQuery := `
		SELECT code, host_id, status, settings, created_at, updated_at, started_at, ended_at
		FROM lobbies WHERE code = $1
	`
	lobby, err := scanLobby(r.db.QueryRowContext(ctx, lobbyQuery, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}

	if err := r.loadPlayers(ctx, []*models.Lobby{lobby}); err != nil {
		return nil, err
	}
	return lobby, nil
}

// loadPlayers fills the rosters of lobbies with a single query.
func (r *PostgresRepository) loadPlayers(ctx context.Context, lobbies []*models.Lobby) error {
	if len(lobbies) == 0 {
		return nil
	}
	codes := make([]string, len(lobbies))
	for i, l := range lobbies {
		codes[i] = l.Code
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT lobby_code, player_id, username, character_name, character_level, is_host, is_ready, is_connected, joined_at
		FROM lobby_players WHERE lobby_code = ANY($1)
		ORDER BY lobby_code, position
	`, pq.Array(codes))
	if err != nil {
		return err
	}
	defer rows.Close()

	var members []lobbyMember
	for rows.Next() {
		var m lobbyMember
		p := &m.player
		if err := rows.Scan(&m.code, &p.ID, &p.Username, &p.Character, &p.CharacterLevel,
			&p.IsHost, &p.IsReady, &p.IsConnected, &p.JoinedAt); err != nil {
			return err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	attachPlayers(lobbies, members)
	return nil
}

type lobbyMember struct {
	code   string
	player models.Player
}

// attachPlayers appends members to their lobbies, keeping member order.
func attachPlayers(lobbies []*models.Lobby, members []lobbyMember) {
	byCode := make(map[string]*models.Lobby, len(lobbies))
	for _, l := range lobbies {
		byCode[l.Code] = l
	}
	for _, m := range members {
		if l, ok := byCode[m.code]; ok {
			p := m.player
			l.Players = append(l.Players, &p)
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLobby(row rowScanner) (*models.Lobby, error) {
	var (
		lobby        models.Lobby
		status       string
		settingsJSON []byte
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)
	if err := row.Scan(&lobby.Code, &lobby.HostID, &status, &settingsJSON,
		&lobby.CreatedAt, &lobby.UpdatedAt, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	lobby.Status = models.LobbyStatus(status)
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &lobby.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %s: %w", lobby.Code, err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		lobby.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		lobby.EndedAt = &t
	}
	lobby.Players = make([]*models.Player, 0)
	return &lobby, nil
}

func (r *PostgresRepository) DeleteLobby(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM lobbies WHERE code = $1", code)
	return err
}

// ListLobbies returns waiting and started lobbies with their rosters, newest first.
func (r *PostgresRepository) ListLobbies(ctx context.Context, limit int) ([]*models.Lobby, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, host_id, status, settings, created_at, updated_at, started_at, ended_at
		FROM lobbies
		WHERE status IN ('waiting', 'started')
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []*models.Lobby
	for rows.Next() {
		lobby, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, lobby)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadPlayers(ctx, lobbies); err != nil {
		return nil, err
	}
	return lobbies, nil
}

func (r *PostgresRepository) DeleteFinishedLobbiesOlderThan(ctx context.Context, age time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM lobbies WHERE status = 'ended' AND ended_at < $1",
		time.Now().Add(-age),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *PostgresRepository) GetProgress(ctx context.Context, playerID string) (models.CharacterProgress, error) {
	p := models.CharacterProgress{PlayerID: playerID}
	err := r.db.QueryRowContext(ctx, `
		SELECT level, experience_points, updated_at
		FROM character_progress WHERE player_id = $1
	`, playerID).Scan(&p.Level, &p.ExperiencePoints, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CharacterProgress{}, ErrProgressNotFound
		}
		return models.CharacterProgress{}, err
	}
	return p, nil
}

// SaveProgress never lowers stored experience, so a stale writer from
// another process cannot roll a player back.
func (r *PostgresRepository) SaveProgress(ctx context.Context, p models.CharacterProgress) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO character_progress (player_id, level, experience_points, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id) DO UPDATE SET
			level = EXCLUDED.level,
			experience_points = EXCLUDED.experience_points,
			updated_at = EXCLUDED.updated_at
		WHERE character_progress.experience_points <= EXCLUDED.experience_points
	`, p.PlayerID, p.Level, p.ExperiencePoints, p.UpdatedAt)
	return err
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
