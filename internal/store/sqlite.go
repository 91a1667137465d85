package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kiteline/scorescribe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS event_windows (
	id           TEXT PRIMARY KEY,
	community_id TEXT NOT NULL,
	title        TEXT NOT NULL,
	sequence     INTEGER NOT NULL DEFAULT 0,
	is_test      INTEGER NOT NULL DEFAULT 0,
	starts_at    DATETIME NOT NULL,
	ends_at      DATETIME NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	close_reason TEXT NOT NULL DEFAULT '',
	initiator_id TEXT NOT NULL DEFAULT '',
	channel_id   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	score        INTEGER NOT NULL DEFAULT 0,
	player_name  TEXT NOT NULL DEFAULT '',
	alliance_tag TEXT NOT NULL DEFAULT '',
	screenshot   TEXT NOT NULL DEFAULT '',
	is_test      INTEGER NOT NULL DEFAULT 0,
	submitted_at DATETIME NOT NULL,
	UNIQUE (submitter_id, community_id, window_id, phase, day)
);

CREATE TABLE IF NOT EXISTS window_entries (
	id           TEXT PRIMARY KEY,
	window_id    TEXT NOT NULL REFERENCES event_windows(id),
	record_id    TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	phase        TEXT NOT NULL,
	day          INTEGER NOT NULL DEFAULT 0,
	is_test      INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS submission_log (
	id           TEXT PRIMARY KEY,
	submitter_id TEXT NOT NULL,
	community_id TEXT NOT NULL,
	window_id    TEXT NOT NULL DEFAULT '',
	success      INTEGER NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS identity_memory (
	submitter_id TEXT PRIMARY KEY,
	player_name  TEXT NOT NULL DEFAULT '',
	alliance_tag TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS power_records (
	submitter_id TEXT NOT NULL,
	community_id TEXT NOT NULL,
	event_label  TEXT NOT NULL,
	power        INTEGER NOT NULL,
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (submitter_id, event_label)
);

CREATE INDEX IF NOT EXISTS idx_windows_community ON event_windows(community_id, active);
CREATE INDEX IF NOT EXISTS idx_records_community_event ON ranking_records(community_id, event_label);
CREATE INDEX IF NOT EXISTS idx_records_submitter ON ranking_records(submitter_id, community_id);
CREATE INDEX IF NOT EXISTS idx_entries_window ON window_entries(window_id);
CREATE INDEX IF NOT EXISTS idx_log_community ON submission_log(community_id);
CREATE INDEX IF NOT EXISTS idx_power_event ON power_records(community_id, event_label);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateWindow inserts a window. Non-test windows receive the next sequence
// number for their community inside the same transaction; test windows never
// consume one.
func (s *SQLiteStore) CreateWindow(ctx context.Context, w *model.EventWindow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create window")
	}
	defer tx.Rollback()

	if !w.IsTest {
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM event_windows WHERE community_id = ? AND is_test = 0`,
			w.CommunityID,
		)
		if err := row.Scan(&w.Sequence); err != nil {
			return eris.Wrap(err, "sqlite: next window sequence")
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO event_windows
		 (id, community_id, title, sequence, is_test, starts_at, ends_at, active, close_reason, initiator_id, channel_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
		w.ID, w.CommunityID, w.Title, w.Sequence, w.IsTest, w.StartsAt.UTC(), w.EndsAt.UTC(),
		w.Active, w.InitiatorID, w.ChannelID, w.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert window")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create window")
}

const windowColumns = `id, community_id, title, sequence, is_test, starts_at, ends_at, active, close_reason, initiator_id, channel_id, created_at`

func (s *SQLiteStore) GetWindow(ctx context.Context, id string) (*model.EventWindow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+windowColumns+` FROM event_windows WHERE id = ?`, id)
	w, err := scanWindow(row)
	if isNoRows(err) {
		return nil, eris.Errorf("window not found: %s", id)
	}
	return w, err
}

func (s *SQLiteStore) ActiveWindows(ctx context.Context, communityID string, includeTests bool) ([]model.EventWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM event_windows WHERE community_id = ? AND active = 1`
	args := []any{communityID}
	if !includeTests {
		query += ` AND is_test = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active windows")
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
	return out, eris.Wrap(rows.Err(), "sqlite: active windows iterate")
}

func (s *SQLiteStore) CloseWindow(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE event_windows SET active = 0, close_reason = ? WHERE id = ? AND active = 1`,
		reason, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close window %s", id)
	}
	return checkRowsAffected(res, "window", id)
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, e *model.WindowEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO window_entries (id, window_id, record_id, submitter_id, phase, day, is_test, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WindowID, e.RecordID, e.SubmitterID, string(e.Phase), int(e.Day), e.IsTest, e.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append window entry")
}

const recordColumns = `id, submitter_id, community_id, window_id, event_label, phase, day, category, rank, score, player_name, alliance_tag, screenshot, is_test, submitted_at`

func (s *SQLiteStore) GetRecordByKey(ctx context.Context, key model.RecordKey) (*model.RankingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ranking_records
		 WHERE submitter_id = ? AND community_id = ? AND window_id = ? AND phase = ? AND day = ?`,
		key.SubmitterID, key.CommunityID, key.WindowID, string(key.Phase), int(key.Day),
	)
	r, err := scanRecord(row)
	if isNoRows(err) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) InsertRecord(ctx context.Context, r *model.RankingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ranking_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubmitterID, r.CommunityID, r.WindowID, r.EventLabel, string(r.Phase), int(r.Day),
		string(r.Category), r.Rank, r.Score, r.PlayerName, r.AllianceTag, r.Screenshot, r.IsTest,
		r.SubmittedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert record")
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, r *model.RankingRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ranking_records
		 SET rank = ?, score = ?, player_name = ?, alliance_tag = ?, screenshot = ?, submitted_at = ?
		 WHERE id = ?`,
		r.Rank, r.Score, r.PlayerName, r.AllianceTag, r.Screenshot, r.SubmittedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", r.ID)
	}
	return checkRowsAffected(res, "record", r.ID)
}

func (s *SQLiteStore) LatestEventMax(ctx context.Context, submitterID, communityID string) (string, int64, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_label, MAX(score) FROM ranking_records
		 WHERE submitter_id = ? AND community_id = ? AND is_test = 0
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
		return "", 0, false, eris.Wrap(err, "sqlite: latest event max")
	}
	return label, maxScore, true, nil
}

func (s *SQLiteStore) ListEventRecords(ctx context.Context, communityID, eventLabel string) ([]model.RankingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM ranking_records
		 WHERE community_id = ? AND event_label = ?
		 ORDER BY submitter_id, phase, day`,
		communityID, eventLabel,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list event records")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list event records iterate")
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, f LeaderboardFilter) ([]LeaderboardRow, error) {
	// Rank 0 means undetected (corrections may omit it), so it never counts
	// as a best rank.
	query := `SELECT submitter_id, MAX(player_name), MAX(alliance_tag),
	                 COALESCE(MIN(CASE WHEN rank > 0 THEN rank END), 0), MAX(score)
	          FROM ranking_records WHERE community_id = ?`
	args := []any{f.CommunityID}

	if f.EventLabel != "" {
		query += ` AND event_label = ?`
		args = append(args, f.EventLabel)
	}
	if f.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(f.Phase))
	}
	if f.Day != nil {
		query += ` AND day = ?`
		args = append(args, int(*f.Day))
	}
	if f.AllianceTag != "" {
		query += ` AND alliance_tag = ?`
		args = append(args, f.AllianceTag)
	}
	if !f.IncludeTests {
		query += ` AND is_test = 0`
	}

	query += ` GROUP BY submitter_id ORDER BY MAX(score) DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: leaderboard")
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.SubmitterID, &r.PlayerName, &r.AllianceTag, &r.BestRank, &r.BestScore); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan leaderboard row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: leaderboard iterate")
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, submitterID string) (*model.IdentityMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT submitter_id, player_name, alliance_tag, updated_at FROM identity_memory WHERE submitter_id = ?`,
		submitterID,
	)
	var m model.IdentityMemory
	err := row.Scan(&m.SubmitterID, &m.PlayerName, &m.AllianceTag, &m.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get identity")
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertIdentity(ctx context.Context, m *model.IdentityMemory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_memory (submitter_id, player_name, alliance_tag, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (submitter_id) DO UPDATE SET
		   player_name = excluded.player_name,
		   alliance_tag = excluded.alliance_tag,
		   updated_at = excluded.updated_at`,
		m.SubmitterID, m.PlayerName, m.AllianceTag, m.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert identity")
}

func (s *SQLiteStore) GetPower(ctx context.Context, submitterID, eventLabel string) (*model.PowerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT submitter_id, community_id, event_label, power, updated_at
		 FROM power_records WHERE submitter_id = ? AND event_label = ?`,
		submitterID, eventLabel,
	)
	var p model.PowerRecord
	err := row.Scan(&p.SubmitterID, &p.CommunityID, &p.EventLabel, &p.Power, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get power")
	}
	return &p, nil
}

func (s *SQLiteStore) SetPower(ctx context.Context, p *model.PowerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO power_records (submitter_id, community_id, event_label, power, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (submitter_id, event_label) DO UPDATE SET
		   community_id = excluded.community_id,
		   power = excluded.power,
		   updated_at = excluded.updated_at`,
		p.SubmitterID, p.CommunityID, p.EventLabel, p.Power, p.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: set power")
}

func (s *SQLiteStore) ListPowers(ctx context.Context, communityID, eventLabel string) ([]model.PowerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT submitter_id, community_id, event_label, power, updated_at
		 FROM power_records WHERE community_id = ? AND event_label = ?`,
		communityID, eventLabel,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list powers")
	}
	defer rows.Close()

	var out []model.PowerRecord
	for rows.Next() {
		var p model.PowerRecord
		if err := rows.Scan(&p.SubmitterID, &p.CommunityID, &p.EventLabel, &p.Power, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan power")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list powers iterate")
}

func (s *SQLiteStore) AppendLog(ctx context.Context, l *model.SubmissionLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submission_log (id, submitter_id, community_id, window_id, success, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SubmitterID, l.CommunityID, l.WindowID, l.Success, l.Reason, l.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append log")
}

func (s *SQLiteStore) LogStats(ctx context.Context, communityID string) ([]LogStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, success, COUNT(*) FROM submission_log
		 WHERE community_id = ? GROUP BY reason, success ORDER BY COUNT(*) DESC`,
		communityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: log stats")
	}
	defer rows.Close()

	var out []LogStat
	for rows.Next() {
		var st LogStat
		if err := rows.Scan(&st.Reason, &st.Success, &st.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log stat")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: log stats iterate")
}

func (s *SQLiteStore) DistinctEventLabels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT event_label FROM ranking_records ORDER BY event_label`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct event labels")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event label")
		}
		out = append(out, label)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: distinct event labels iterate")
}

func (s *SQLiteStore) DeleteEventRecords(ctx context.Context, eventLabel string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ranking_records WHERE event_label = ?`, eventLabel)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete event records")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanWindow(row scannable) (*model.EventWindow, error) {
	var w model.EventWindow
	err := row.Scan(&w.ID, &w.CommunityID, &w.Title, &w.Sequence, &w.IsTest,
		&w.StartsAt, &w.EndsAt, &w.Active, &w.CloseReason, &w.InitiatorID, &w.ChannelID, &w.CreatedAt)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan window")
	}
	return &w, nil
}

func scanRecord(row scannable) (*model.RankingRecord, error) {
	var r model.RankingRecord
	var phase, category string
	var day int
	err := row.Scan(&r.ID, &r.SubmitterID, &r.CommunityID, &r.WindowID, &r.EventLabel,
		&phase, &day, &category, &r.Rank, &r.Score, &r.PlayerName, &r.AllianceTag,
		&r.Screenshot, &r.IsTest, &r.SubmittedAt)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan record")
	}
	r.Phase = model.Phase(phase)
	r.Day = model.Day(day)
	r.Category = model.Category(category)
	return &r, nil
}
