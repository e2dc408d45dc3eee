package storage

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/language/display"
)

// DefaultVoicebankTypes is the closed vocabulary of synthesizer engines.
var DefaultVoicebankTypes = []string{
	"utau",
	"paintvoice",
	"diffsinger",
	"rvc",
	"freeloid",
	"coeiroink",
	"vocalsharp",
	"niaoniao",
	"deepvocal",
}

// DefaultLanguages lists every two-letter base language with an english
// display name. FullName is the first word of the lower-cased name, so
// "Norwegian Bokmål" becomes "norwegian".
func DefaultLanguages() []Language {
	namer := display.English.Languages()
	seen := make(map[string]bool)
	var out []Language
	for _, base := range display.Supported.BaseLanguages() {
		code := base.String()
		if len(code) != 2 || seen[code] {
			continue
		}
		words := strings.Fields(strings.ToLower(namer.Name(base)))
		if len(words) == 0 {
			continue
		}
		seen[code] = true
		out = append(out, Language{Code: code, FullName: words[0]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Reference is the canonical language and type vocabulary loaded once per pass.
type Reference struct {
	Languages []Language
	Types     []VoicebankType
}

func (d *DB) seedReference(ctx context.Context) error {
	var n int
	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM voicebank_types").Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		for _, t := range DefaultVoicebankTypes {
			if _, err := d.sql.ExecContext(ctx, d.rebind("INSERT INTO voicebank_types(name) VALUES(?) ON CONFLICT(name) DO NOTHING"), t); err != nil {
				return err
			}
		}
	}

	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM languages").Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, l := range DefaultLanguages() {
			if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO languages(code, full_name) VALUES(?,?) ON CONFLICT(code) DO NOTHING"), l.Code, l.FullName); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	}
	return nil
}

// LoadReference returns the canonical languages and voicebank types.
func (d *DB) LoadReference(ctx context.Context) (Reference, error) {
	var ref Reference

	rows, err := d.sql.QueryContext(ctx, "SELECT id, code, full_name FROM languages ORDER BY id")
	if err != nil {
		return ref, err
	}
	for rows.Next() {
		var l Language
		if err := rows.Scan(&l.ID, &l.Code, &l.FullName); err != nil {
			rows.Close()
			return ref, err
		}
		ref.Languages = append(ref.Languages, l)
	}
	if err := rows.Close(); err != nil {
		return ref, err
	}

	rows, err = d.sql.QueryContext(ctx, "SELECT id, name FROM voicebank_types ORDER BY id")
	if err != nil {
		return ref, err
	}
	defer rows.Close()
	for rows.Next() {
		var t VoicebankType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return ref, err
		}
		ref.Types = append(ref.Types, t)
	}
	return ref, rows.Err()
}
