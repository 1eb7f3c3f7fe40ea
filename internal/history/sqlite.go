package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/parallel/pkg/api"
)

// SQLiteStore stores task events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scheduler_id TEXT NOT NULL,
			task_id INTEGER NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			worker TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(scheduler_id, task_id, id);
	`)
	return err
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.TaskEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_events (scheduler_id, task_id, at, type, worker, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SchedulerID,
		ev.TaskID,
		at.UnixNano(),
		string(ev.Type),
		ev.Worker,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, schedulerID string, taskID int) ([]api.TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scheduler_id, task_id, at, type, worker, detail
		FROM task_events
		WHERE scheduler_id = ? AND task_id = ?
		ORDER BY id ASC`, schedulerID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TaskEvent
	for rows.Next() {
		var (
			sid    string
			tid    int
			atN    int64
			typ    string
			worker string
			detail string
		)
		if err := rows.Scan(&sid, &tid, &atN, &typ, &worker, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.TaskEvent{
			SchedulerID: sid,
			TaskID:      tid,
			At:          time.Unix(0, atN),
			Type:        api.EventType(typ),
			Worker:      worker,
			Detail:      detail,
		})
	}
	return out, rows.Err()
}
