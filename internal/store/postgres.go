package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/db"
	"github.com/kiteline/scorescribe/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS event_windows (
	id           TEXT PRIMARY KEY,
	community_id TEXT NOT NULL,
	title        TEXT NOT NULL,
	sequence     INTEGER NOT NULL DEFAULT 0,
	is_test      BOOLEAN NOT NULL DEFAULT FALSE,
	starts_at    TIMESTAMPTZ NOT NULL,
	ends_at      TIMESTAMPTZ NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	close_reason TEXT NOT NULL DEFAULT '',
	initiator_id TEXT NOT NULL DEFAULT '',
	channel_id   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ranking_records (
	id           TEXT PRIMARY KEY,
	submitter_id TEXT NOT NULL,
	community_id TEXT NOT NULL,
	window_id    TEXT NOT NULL REFERENCES event_windows(id),
	event_label  TEXT NOT NULL,
	phase        TEXT NOT NULL,
	day          INTEGER NOT NULL DEFAULT 0,
	category     TEXT NOT NULL,
	rank         INTEGER NOT NULL DEFAULT 0,
	score        BIGINT NOT NULL DEFAULT 0,
	player_name  TEXT NOT NULL DEFAULT '',
	alliance_tag TEXT NOT NULL DEFAULT '',
	screenshot   TEXT NOT NULL DEFAULT '',
	is_test      BOOLEAN NOT NULL DEFAULT FALSE,
	submitted_at TIMESTAMPTZ NOT NULL,
	UNIQUE (submitter_id, community_id, window_id, phase, day)
);

CREATE TABLE IF NOT EXISTS window_entries (
	id           TEXT PRIMARY KEY,
	window_id    TEXT NOT NULL REFERENCES event_windows(id),
	record_id    TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	phase        TEXT NOT NULL,
	day          INTEGER NOT NULL DEFAULT 0,
	is_test      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submission_log (
	id           TEXT PRIMARY KEY,
	submitter_id TEXT NOT NULL,
	community_id TEXT NOT NULL,
	window_id    TEXT NOT NULL DEFAULT '',
	success      BOOLEAN NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identity_memory (
	submitter_id TEXT PRIMARY KEY,
	player_name  TEXT NOT NULL DEFAULT '',
	alliance_tag TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS power_records (
	submitter_id TEXT NOT NULL,
	community_id TEXT NOT NULL,
	event_label  TEXT NOT NULL,
	power        BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (submitter_id, event_label)
);

CREATE INDEX IF NOT EXISTS idx_windows_community ON event_windows(community_id, active);
CREATE INDEX IF NOT EXISTS idx_records_community_event ON ranking_records(community_id, event_label);
CREATE INDEX IF NOT EXISTS idx_records_submitter ON ranking_records(submitter_id, community_id);
CREATE INDEX IF NOT EXISTS idx_entries_window ON window_entries(window_id);
CREATE INDEX IF NOT EXISTS idx_log_community ON submission_log(community_id);
CREATE INDEX IF NOT EXISTS idx_power_event ON power_records(community_id, event_label);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateWindow inserts a window, assigning the next per-community sequence
// number to non-test windows via a scalar subquery in the same statement.
func (s *PostgresStore) CreateWindow(ctx context.Context, w *model.EventWindow) error {
	if w.IsTest {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO event_windows
			 (id, community_id, title, sequence, is_test, starts_at, ends_at, active, initiator_id, channel_id, created_at)
			 VALUES ($1, $2, $3, 0, TRUE, $4, $5, $6, $7, $8, $9)`,
			w.ID, w.CommunityID, w.Title, w.StartsAt.UTC(), w.EndsAt.UTC(), w.Active,
			w.InitiatorID, w.ChannelID, w.CreatedAt.UTC(),
		)
		return eris.Wrap(err, "postgres: insert test window")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO event_windows
		 (id, community_id, title, sequence, is_test, starts_at, ends_at, active, initiator_id, channel_id, created_at)
		 VALUES ($1, $2, $3,
		   (SELECT COALESCE(MAX(sequence), 0) + 1 FROM event_windows WHERE community_id = $2 AND NOT is_test),
		   FALSE, $4, $5, $6, $7, $8, $9)
		 RETURNING sequence`,
		w.ID, w.CommunityID, w.Title, w.StartsAt.UTC(), w.EndsAt.UTC(), w.Active,
		w.InitiatorID, w.ChannelID, w.CreatedAt.UTC(),
	)
	if err := row.Scan(&w.Sequence); err != nil {
		return eris.Wrap(err, "postgres: insert window")
	}
	return nil
}

func (s *PostgresStore) GetWindow(ctx context.Context, id string) (*model.EventWindow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+windowColumns+` FROM event_windows WHERE id = $1`, id)
	w, err := scanWindow(row)
	if isNoRows(err) {
		return nil, eris.Errorf("window not found: %s", id)
	}
	return w, err
}

func (s *PostgresStore) ActiveWindows(ctx context.Context, communityID string, includeTests bool) ([]model.EventWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM event_windows WHERE community_id = $1 AND active`
	if !includeTests {
		query += ` AND NOT is_test`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, communityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active windows")
	}
	defer rows.Close()

	var out []model.EventWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: active windows iterate")
}

func (s *PostgresStore) CloseWindow(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE event_windows SET active = FALSE, close_reason = $1 WHERE id = $2 AND active`,
		reason, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: close window %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("window not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendEntry(ctx context.Context, e *model.WindowEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO window_entries (id, window_id, record_id, submitter_id, phase, day, is_test, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.WindowID, e.RecordID, e.SubmitterID, string(e.Phase), int(e.Day), e.IsTest, e.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append window entry")
}

func (s *PostgresStore) GetRecordByKey(ctx context.Context, key model.RecordKey) (*model.RankingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM ranking_records
		 WHERE submitter_id = $1 AND community_id = $2 AND window_id = $3 AND phase = $4 AND day = $5`,
		key.SubmitterID, key.CommunityID, key.WindowID, string(key.Phase), int(key.Day),
	)
	r, err := scanRecord(row)
	if isNoRows(err) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) InsertRecord(ctx context.Context, r *model.RankingRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ranking_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.SubmitterID, r.CommunityID, r.WindowID, r.EventLabel, string(r.Phase), int(r.Day),
		string(r.Category), r.Rank, r.Score, r.PlayerName, r.AllianceTag, r.Screenshot, r.IsTest,
		r.SubmittedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert record")
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, r *model.RankingRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ranking_records
		 SET rank = $1, score = $2, player_name = $3, alliance_tag = $4, screenshot = $5, submitted_at = $6
		 WHERE id = $7`,
		r.Rank, r.Score, r.PlayerName, r.AllianceTag, r.Screenshot, r.SubmittedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) LatestEventMax(ctx context.Context, submitterID, communityID string) (string, int64, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT event_label, MAX(score) FROM ranking_records
		 WHERE submitter_id = $1 AND community_id = $2 AND NOT is_test
		 GROUP BY event_label
		 ORDER BY MAX(submitted_at) DESC LIMIT 1`,
		submitterID, communityID,
	)
	var label string
	var maxScore int64
	err := row.Scan(&label, &maxScore)
	if isNoRows(err) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, eris.Wrap(err, "postgres: latest event max")
	}
	return label, maxScore, true, nil
}

func (s *PostgresStore) ListEventRecords(ctx context.Context, communityID, eventLabel string) ([]model.RankingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM ranking_records
		 WHERE community_id = $1 AND event_label = $2
		 ORDER BY submitter_id, phase, day`,
		communityID, eventLabel,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list event records")
	}
	defer rows.Close()

	var out []model.RankingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list event records iterate")
}

func (s *PostgresStore) Leaderboard(ctx context.Context, f LeaderboardFilter) ([]LeaderboardRow, error) {
	// Rank 0 means undetected (corrections may omit it), so it never counts
	// as a best rank.
	query := `SELECT submitter_id, MAX(player_name), MAX(alliance_tag),
	                 COALESCE(MIN(CASE WHEN rank > 0 THEN rank END), 0), MAX(score)
	          FROM ranking_records WHERE community_id = $1`
	args := []any{f.CommunityID}

	n := 1
	next := func() string {
		n++
		return "$" + strconv.Itoa(n)
	}

	if f.EventLabel != "" {
		query += ` AND event_label = ` + next()
		args = append(args, f.EventLabel)
	}
	if f.Phase != "" {
		query += ` AND phase = ` + next()
		args = append(args, string(f.Phase))
	}
	if f.Day != nil {
		query += ` AND day = ` + next()
		args = append(args, int(*f.Day))
	}
	if f.AllianceTag != "" {
		query += ` AND alliance_tag = ` + next()
		args = append(args, f.AllianceTag)
	}
	if !f.IncludeTests {
		query += ` AND NOT is_test`
	}

	query += ` GROUP BY submitter_id ORDER BY MAX(score) DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next()
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: leaderboard")
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.SubmitterID, &r.PlayerName, &r.AllianceTag, &r.BestRank, &r.BestScore); err != nil {
			return nil, eris.Wrap(err, "postgres: scan leaderboard row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: leaderboard iterate")
}

func (s *PostgresStore) GetIdentity(ctx context.Context, submitterID string) (*model.IdentityMemory, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT submitter_id, player_name, alliance_tag, updated_at FROM identity_memory WHERE submitter_id = $1`,
		submitterID,
	)
	var m model.IdentityMemory
	err := row.Scan(&m.SubmitterID, &m.PlayerName, &m.AllianceTag, &m.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get identity")
	}
	return &m, nil
}

func (s *PostgresStore) UpsertIdentity(ctx context.Context, m *model.IdentityMemory) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identity_memory (submitter_id, player_name, alliance_tag, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (submitter_id) DO UPDATE SET
		   player_name = EXCLUDED.player_name,
		   alliance_tag = EXCLUDED.alliance_tag,
		   updated_at = EXCLUDED.updated_at`,
		m.SubmitterID, m.PlayerName, m.AllianceTag, m.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: upsert identity")
}

func (s *PostgresStore) GetPower(ctx context.Context, submitterID, eventLabel string) (*model.PowerRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT submitter_id, community_id, event_label, power, updated_at
		 FROM power_records WHERE submitter_id = $1 AND event_label = $2`,
		submitterID, eventLabel,
	)
	var p model.PowerRecord
	err := row.Scan(&p.SubmitterID, &p.CommunityID, &p.EventLabel, &p.Power, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get power")
	}
	return &p, nil
}

func (s *PostgresStore) SetPower(ctx context.Context, p *model.PowerRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO power_records (submitter_id, community_id, event_label, power, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (submitter_id, event_label) DO UPDATE SET
		   community_id = EXCLUDED.community_id,
		   power = EXCLUDED.power,
		   updated_at = EXCLUDED.updated_at`,
		p.SubmitterID, p.CommunityID, p.EventLabel, p.Power, p.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: set power")
}

func (s *PostgresStore) ListPowers(ctx context.Context, communityID, eventLabel string) ([]model.PowerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT submitter_id, community_id, event_label, power, updated_at
		 FROM power_records WHERE community_id = $1 AND event_label = $2`,
		communityID, eventLabel,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list powers")
	}
	defer rows.Close()

	var out []model.PowerRecord
	for rows.Next() {
		var p model.PowerRecord
		if err := rows.Scan(&p.SubmitterID, &p.CommunityID, &p.EventLabel, &p.Power, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan power")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list powers iterate")
}

func (s *PostgresStore) AppendLog(ctx context.Context, l *model.SubmissionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submission_log (id, submitter_id, community_id, window_id, success, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.SubmitterID, l.CommunityID, l.WindowID, l.Success, l.Reason, l.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append log")
}

func (s *PostgresStore) LogStats(ctx context.Context, communityID string) ([]LogStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reason, success, COUNT(*) FROM submission_log
		 WHERE community_id = $1 GROUP BY reason, success ORDER BY COUNT(*) DESC`,
		communityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: log stats")
	}
	defer rows.Close()

	var out []LogStat
	for rows.Next() {
		var st LogStat
		if err := rows.Scan(&st.Reason, &st.Success, &st.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log stat")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: log stats iterate")
}

func (s *PostgresStore) DistinctEventLabels(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT event_label FROM ranking_records ORDER BY event_label`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct event labels")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event label")
		}
		out = append(out, label)
	}
	return out, eris.Wrap(rows.Err(), "postgres: distinct event labels iterate")
}

func (s *PostgresStore) DeleteEventRecords(ctx context.Context, eventLabel string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ranking_records WHERE event_label = $1`, eventLabel)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete event records")
	}
	return int(tag.RowsAffected()), nil
}

