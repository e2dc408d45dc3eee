package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ProfileRef is the minimal stored state the reconciler compares against.
type ProfileRef struct {
	ID           int64
	Key          ProfileKey
	Stars        int
	LastActivity time.Time
}

// LookupProfile returns the stored state for key, or nil when absent.
func (d *DB) LookupProfile(ctx context.Context, key ProfileKey) (*ProfileRef, error) {
	var (
		ref  ProfileRef
		last string
	)
	err := d.sql.QueryRowContext(ctx, d.rebind(`
SELECT p.id, p.stars, p.last_activity
FROM profiles p JOIN creators c ON c.id = p.creator_id
WHERE c.login = ? AND p.repository_name = ?`), key.CreatorLogin, key.RepositoryName).Scan(&ref.ID, &ref.Stars, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref.Key = key
	ref.LastActivity = parseTime(last)
	return &ref, nil
}

// GetCreator returns the stored creator with login, or nil when unknown.
func (d *DB) GetCreator(ctx context.Context, login string) (*Creator, error) {
	var (
		c    Creator
		name sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, d.rebind("SELECT id, login, display_name FROM creators WHERE login = ?"), login).Scan(&c.ID, &c.Login, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.DisplayName = name.String
	return &c, nil
}

// FindTags returns the stored tags whose name is in names.
func (d *DB) FindTags(ctx context.Context, names []string) ([]Tag, error) {
	var out []Tag
	for _, n := range names {
		var t Tag
		err := d.sql.QueryRowContext(ctx, d.rebind("SELECT id, name FROM tags WHERE name = ?"), n).Scan(&t.ID, &t.Name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateStars refreshes the star count of a stored profile.
func (d *DB) UpdateStars(ctx context.Context, id int64, stars int) error {
	_, err := d.sql.ExecContext(ctx, d.rebind("UPDATE profiles SET stars = ? WHERE id = ?"), stars, id)
	return err
}

// SaveProfile creates the profile or updates it in place, all in one
// transaction. On update the voicebanks, their language links and the tag
// links are replaced wholesale, never merged.
func (d *DB) SaveProfile(ctx context.Context, p *Profile, runID string) (Change, error) {
	change := Change{OccurredAt: time.Now().UTC(), RunID: runID, CreatorLogin: p.Creator.Login, RepositoryName: p.RepositoryName}

	details, err := json.Marshal(p.Details)
	if err != nil {
		return change, err
	}
	images, err := json.Marshal(nonNil(p.ImageURLs))
	if err != nil {
		return change, err
	}
	videos, err := json.Marshal(nonNil(p.VideoIDs))
	if err != nil {
		return change, err
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return change, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	creatorID, err := d.ensureCreator(ctx, tx, p.Creator)
	if err != nil {
		return change, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, d.rebind("SELECT id FROM profiles WHERE creator_id = ? AND repository_name = ?"), creatorID, p.RepositoryName).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, d.rebind(`
INSERT INTO profiles(creator_id, repository_name, name, avatar_url, site_url, stars, created_at, last_activity, details, image_urls, video_ids)
VALUES(?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
			creatorID, p.RepositoryName, p.Name, p.AvatarURL, nullIfEmpty(p.SiteURL), p.Stars,
			formatTime(p.CreatedAt), formatTime(p.LastActivity), string(details), string(images), string(videos)).Scan(&id)
		if err != nil {
			return change, err
		}
		change.ChangeType = ChangeAdded
	case err != nil:
		return change, err
	default:
		_, err = tx.ExecContext(ctx, d.rebind(`
UPDATE profiles SET name = ?, avatar_url = ?, site_url = ?, stars = ?, created_at = ?, last_activity = ?, details = ?, image_urls = ?, video_ids = ?
WHERE id = ?`),
			p.Name, p.AvatarURL, nullIfEmpty(p.SiteURL), p.Stars, formatTime(p.CreatedAt), formatTime(p.LastActivity),
			string(details), string(images), string(videos), id)
		if err != nil {
			return change, err
		}
		if err = d.clearAssociations(ctx, tx, id); err != nil {
			return change, err
		}
		change.ChangeType = ChangeUpdated
	}

	if err = d.insertVoicebanks(ctx, tx, id, p.Voicebanks); err != nil {
		return change, err
	}
	if err = d.insertTags(ctx, tx, id, p.Tags); err != nil {
		return change, err
	}
	if err = d.insertChange(ctx, tx, change); err != nil {
		return change, err
	}
	if err = tx.Commit(); err != nil {
		return change, err
	}

	p.ID = id
	p.Creator.ID = creatorID
	return change, nil
}

func (d *DB) ensureCreator(ctx context.Context, tx *sql.Tx, c Creator) (int64, error) {
	if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO creators(login, display_name) VALUES(?,?) ON CONFLICT(login) DO NOTHING"), c.Login, nullIfEmpty(c.DisplayName)); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRowContext(ctx, d.rebind("SELECT id FROM creators WHERE login = ?"), c.Login).Scan(&id)
	return id, err
}

func (d *DB) clearAssociations(ctx context.Context, tx *sql.Tx, profileID int64) error {
	stmts := []string{
		"DELETE FROM voicebank_languages WHERE voicebank_id IN (SELECT id FROM voicebanks WHERE profile_id = ?)",
		"DELETE FROM voicebanks WHERE profile_id = ?",
		"DELETE FROM profile_tags WHERE profile_id = ?",
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, d.rebind(s), profileID); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) insertVoicebanks(ctx context.Context, tx *sql.Tx, profileID int64, vbs []Voicebank) error {
	for i := range vbs {
		vb := &vbs[i]
		desc, err := json.Marshal(vb.Description)
		if err != nil {
			return err
		}
		samples, err := json.Marshal(nonNil(vb.SampleURLs))
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, d.rebind(`
INSERT INTO voicebanks(profile_id, position, name, url, description, type_id, sample_urls)
VALUES(?,?,?,?,?,?,?) RETURNING id`),
			profileID, i, vb.Name, vb.URL, string(desc), vb.Type.ID, string(samples)).Scan(&vb.ID)
		if err != nil {
			return err
		}
		for _, l := range vb.Languages {
			if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO voicebank_languages(voicebank_id, language_id) VALUES(?,?) ON CONFLICT DO NOTHING"), vb.ID, l.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertTags links tags to the profile, creating the ones without an ID.
func (d *DB) insertTags(ctx context.Context, tx *sql.Tx, profileID int64, tags []Tag) error {
	for i := range tags {
		t := &tags[i]
		if t.ID == 0 {
			if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO tags(name) VALUES(?) ON CONFLICT(name) DO NOTHING"), t.Name); err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx, d.rebind("SELECT id FROM tags WHERE name = ?"), t.Name).Scan(&t.ID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO profile_tags(profile_id, tag_id, position) VALUES(?,?,?) ON CONFLICT DO NOTHING"), profileID, t.ID, i); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMissingProfiles removes every stored profile whose key is not in
// keep, along with its voicebanks and links.
func (d *DB) DeleteMissingProfiles(ctx context.Context, keep []ProfileKey, runID string) (changes []Change, err error) {
	keepSet := make(map[ProfileKey]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	refs, err := d.ListProfileKeys(ctx)
	if err != nil {
		return nil, err
	}
	var stale []ProfileRef
	for _, r := range refs {
		if !keepSet[r.Key] {
			stale = append(stale, r)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, s := range stale {
		if err = d.clearAssociations(ctx, tx, s.ID); err != nil {
			return nil, err
		}
		if _, err = tx.ExecContext(ctx, d.rebind("DELETE FROM profiles WHERE id = ?"), s.ID); err != nil {
			return nil, err
		}
		c := Change{OccurredAt: now, RunID: runID, CreatorLogin: s.Key.CreatorLogin, RepositoryName: s.Key.RepositoryName, ChangeType: ChangeRemoved}
		if err = d.insertChange(ctx, tx, c); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListProfileKeys returns the identity and stored state of every profile.
func (d *DB) ListProfileKeys(ctx context.Context) ([]ProfileRef, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT p.id, c.login, p.repository_name, p.stars, p.last_activity
FROM profiles p JOIN creators c ON c.id = p.creator_id
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProfileRef
	for rows.Next() {
		var (
			r    ProfileRef
			last string
		)
		if err := rows.Scan(&r.ID, &r.Key.CreatorLogin, &r.Key.RepositoryName, &r.Stars, &last); err != nil {
			return nil, err
		}
		r.LastActivity = parseTime(last)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
