package storage

import "time"

// ProfileKey is the stable identity of a profile.
type ProfileKey struct {
	CreatorLogin   string
	RepositoryName string
}

func (k ProfileKey) String() string {
	return k.CreatorLogin + "/" + k.RepositoryName
}

// Creator is the account that owns one or more singer repositories.
type Creator struct {
	ID          int64
	Login       string
	DisplayName string
}

// Name returns the display name, falling back to the login.
func (c Creator) Name() string {
	if c.DisplayName == "" {
		return c.Login
	}
	return c.DisplayName
}

// Details holds the localized text blocks of a profile.
type Details struct {
	Description string   `json:"description"`
	GeneralInfo []string `json:"generalInfo"`
	TermsOfUse  []string `json:"termsOfUse"`
}

// Language is a canonical voicebank language (ISO 639-1 code plus english name).
type Language struct {
	ID       int64
	Code     string
	FullName string
}

// VoicebankType is a canonical synthesizer engine name.
type VoicebankType struct {
	ID   int64
	Name string
}

// Tag is a free-form label derived from repository topics.
type Tag struct {
	ID   int64
	Name string
}

// Voicebank is owned by exactly one Profile.
type Voicebank struct {
	ID          int64
	Name        string
	URL         string
	Description Localized[string]
	Type        VoicebankType
	Languages   []Language
	SampleURLs  []string
}

// Profile is a persisted singer profile.
type Profile struct {
	ID             int64
	Creator        Creator
	RepositoryName string

	Name         string
	AvatarURL    string
	SiteURL      string
	Stars        int
	CreatedAt    time.Time
	LastActivity time.Time

	Details    Localized[Details]
	Voicebanks []Voicebank
	Tags       []Tag
	ImageURLs  []string
	VideoIDs   []string
}

// Key returns the identity of the profile.
func (p *Profile) Key() ProfileKey {
	return ProfileKey{CreatorLogin: p.Creator.Login, RepositoryName: p.RepositoryName}
}

// Change captures a single change event for auditing or printing.
type Change struct {
	OccurredAt time.Time `json:"occurredAt"`
	RunID      string    `json:"runId"`

	CreatorLogin   string `json:"creatorLogin"`
	RepositoryName string `json:"repositoryName"`
	ChangeType     string `json:"changeType"` // added | updated | removed
}

const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)
