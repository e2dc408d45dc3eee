package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// GetProfile loads the full profile for key, or nil when it is not stored.
func (d *DB) GetProfile(ctx context.Context, key ProfileKey) (*Profile, error) {
	var (
		p                       Profile
		creatorName, site       sql.NullString
		created, last           string
		details, images, videos string
	)
	err := d.sql.QueryRowContext(ctx, d.rebind(`
SELECT p.id, c.id, c.login, c.display_name, p.repository_name, p.name, p.avatar_url, p.site_url, p.stars,
       p.created_at, p.last_activity, p.details, p.image_urls, p.video_ids
FROM profiles p JOIN creators c ON c.id = p.creator_id
WHERE c.login = ? AND p.repository_name = ?`), key.CreatorLogin, key.RepositoryName).Scan(
		&p.ID, &p.Creator.ID, &p.Creator.Login, &creatorName, &p.RepositoryName, &p.Name, &p.AvatarURL, &site, &p.Stars,
		&created, &last, &details, &images, &videos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Creator.DisplayName = creatorName.String
	p.SiteURL = site.String
	p.CreatedAt = parseTime(created)
	p.LastActivity = parseTime(last)
	if err := json.Unmarshal([]byte(details), &p.Details); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &p.ImageURLs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(videos), &p.VideoIDs); err != nil {
		return nil, err
	}

	if p.Voicebanks, err = d.loadVoicebanks(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Tags, err = d.loadTags(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) loadVoicebanks(ctx context.Context, profileID int64) ([]Voicebank, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`
SELECT v.id, v.name, v.url, v.description, v.sample_urls, t.id, t.name
FROM voicebanks v JOIN voicebank_types t ON t.id = v.type_id
WHERE v.profile_id = ? ORDER BY v.position`), profileID)
	if err != nil {
		return nil, err
	}
	var out []Voicebank
	for rows.Next() {
		var (
			vb            Voicebank
			desc, samples string
		)
		if err := rows.Scan(&vb.ID, &vb.Name, &vb.URL, &desc, &samples, &vb.Type.ID, &vb.Type.Name); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(desc), &vb.Description); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(samples), &vb.SampleURLs); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, vb)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range out {
		langs, err := d.loadVoicebankLanguages(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Languages = langs
	}
	return out, nil
}

func (d *DB) loadVoicebankLanguages(ctx context.Context, voicebankID int64) ([]Language, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`
SELECT l.id, l.code, l.full_name
FROM voicebank_languages vl JOIN languages l ON l.id = vl.language_id
WHERE vl.voicebank_id = ? ORDER BY l.id`), voicebankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Language
	for rows.Next() {
		var l Language
		if err := rows.Scan(&l.ID, &l.Code, &l.FullName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *DB) loadTags(ctx context.Context, profileID int64) ([]Tag, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`
SELECT t.id, t.name
FROM profile_tags pt JOIN tags t ON t.id = pt.tag_id
WHERE pt.profile_id = ? ORDER BY pt.position`), profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
