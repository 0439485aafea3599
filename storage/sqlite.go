package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"inventory_watch/models"
)

// SQLiteStore keeps the operational audit trail: runs, their logs, per-target
// results and the command queue. The vehicle ledger itself lives elsewhere.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_runs (
		id INTEGER PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		targets_total INTEGER,
		targets_failed INTEGER,
		vehicles_found INTEGER,
		vehicles_accepted INTEGER,
		vehicles_new INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS search_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		location_id TEXT
	);

	CREATE TABLE IF NOT EXISTS target_results (
		id INTEGER PRIMARY KEY,
		run_id INTEGER NOT NULL,
		location_id TEXT,
		kind TEXT,
		model TEXT,
		url TEXT,
		strategy TEXT,
		candidates INTEGER,
		error TEXT,
		fetched_at DATETIME,
		FOREIGN KEY (run_id) REFERENCES search_runs(id)
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON search_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON search_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_targets_run ON target_results(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.RunRecord) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO search_runs (started_at, status, targets_total, targets_failed,
			vehicles_found, vehicles_accepted, vehicles_new, errors_count)
		VALUES (?, ?, 0, 0, 0, 0, 0, 0)`,
		run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.RunRecord) error {
	_, err := s.db.Exec(`
		UPDATE search_runs SET finished_at = ?, status = ?, targets_total = ?, targets_failed = ?,
			vehicles_found = ?, vehicles_accepted = ?, vehicles_new = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.TargetsTotal, run.TargetsFailed,
		run.VehiclesFound, run.VehiclesAccepted, run.VehiclesNew, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, targets_total, targets_failed,
			vehicles_found, vehicles_accepted, vehicles_new, errors_count
		FROM search_runs WHERE id = ?`, id)

	var r models.RunRecord
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.TargetsTotal, &r.TargetsFailed,
		&r.VehiclesFound, &r.VehiclesAccepted, &r.VehiclesNew, &r.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, locationID string) error {
	_, err := s.db.Exec(`
		INSERT INTO search_logs (run_id, timestamp, level, message, location_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, s.now(), level, message, locationID)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID int64) ([]models.SearchLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, location_id
		FROM search_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.SearchLog
	for rows.Next() {
		var l models.SearchLog
		var loc sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &loc); err != nil {
			return nil, err
		}
		l.LocationID = loc.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) SaveTargetResult(r *models.TargetResult) error {
	_, err := s.db.Exec(`
		INSERT INTO target_results (run_id, location_id, kind, model, url, strategy, candidates, error, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.LocationID, r.Kind, r.Model, r.URL, r.Strategy, r.Candidates, r.Error, r.FetchedAt)
	return err
}

func (s *SQLiteStore) GetTargetResults(runID int64) ([]models.TargetResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, location_id, kind, model, url, strategy, candidates, error, fetched_at
		FROM target_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.TargetResult
	for rows.Next() {
		var r models.TargetResult
		if err := rows.Scan(&r.RunID, &r.LocationID, &r.Kind, &r.Model, &r.URL,
			&r.Strategy, &r.Candidates, &r.Error, &r.FetchedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) QueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw any
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return 0, err
		}
		raw = string(data)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, s.now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		var processed sql.NullTime
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &processed); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		if processed.Valid {
			cmd.ProcessedAt = &processed.Time
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, s.now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// ResetAllData clears every audit table.
func (s *SQLiteStore) ResetAllData() error {
	tables := []string{
		"search_logs",
		"target_results",
		"search_runs",
		"commands",
	}

	for _, table := range tables {
		_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	return nil
}
