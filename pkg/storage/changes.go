package storage

import (
	"context"
	"database/sql"
)

func (d *DB) insertChange(ctx context.Context, tx *sql.Tx, c Change) error {
	_, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO profile_changes(occurred_at, run_id, creator_login, repository_name, change_type) VALUES(?,?,?,?,?)`),
		formatTime(c.OccurredAt), c.RunID, c.CreatorLogin, c.RepositoryName, c.ChangeType)
	return err
}

// ListRecentChanges returns the most recent N changes across all profiles.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, d.rebind("SELECT occurred_at, run_id, creator_login, repository_name, change_type FROM profile_changes ORDER BY id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c          Change
			occurredAt string
		)
		if err := rows.Scan(&occurredAt, &c.RunID, &c.CreatorLogin, &c.RepositoryName, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTime(occurredAt)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// Stats summarizes the directory contents.
type Stats struct {
	Profiles   int `json:"profiles"`
	Voicebanks int `json:"voicebanks"`
	Creators   int `json:"creators"`
	Tags       int `json:"tags"`
	Languages  int `json:"languages"`
	Types      int `json:"types"`
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"profiles", &s.Profiles},
		{"voicebanks", &s.Voicebanks},
		{"creators", &s.Creators},
		{"tags", &s.Tags},
		{"languages", &s.Languages},
		{"voicebank_types", &s.Types},
	}
	for _, c := range counts {
		if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return s, err
		}
	}
	return s, nil
}
