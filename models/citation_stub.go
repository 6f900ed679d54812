package models

import (
	"time"
)

// CitationStub ist ein aus einer Alert-Mail extrahierter, noch nicht
// identifizierter Zitations-Kandidat. Ein Stub pro h3-Block der Mail.
type CitationStub struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Herkunfts-Mail
	EmailID       string     `json:"email_id" gorm:"column:email_id;index:idx_stub_natural_key,unique;not null"`
	SentDate      *time.Time `json:"sent_date,omitempty"`
	HarvestedDate *time.Time `json:"harvested_date,omitempty"`
	Source        string     `json:"source" gorm:"index"` // z.B. "GS"
	Label         string     `json:"label,omitempty"`

	// Extrahierte Felder; Title ist nie leer (Blöcke ohne Titel werden verworfen).
	Title    string `json:"title" gorm:"index:idx_stub_natural_key,unique;not null"`
	Snippet  string `json:"snippet,omitempty" gorm:"type:text"`
	Author   string `json:"author,omitempty"`
	PubTitle string `json:"pub_title,omitempty"`
	PubYear  *int   `json:"pub_year,omitempty"`

	// Snippet-Highlight-Merkmale; HighlightSpan ist genau dann nil,
	// wenn kein hervorgehobener Snippet-Text existiert.
	SnippetMatch  bool `json:"snippet_match"`
	HighlightSpan *int `json:"highlight_span,omitempty"`

	// Identifikations-Status, gesetzt vom Identifier
	IDStatus        bool       `json:"id_status" gorm:"default:false"`
	DOI             string     `json:"doi,omitempty" gorm:"column:doi;index"`
	LastRegistryRun *time.Time `json:"last_registry_run,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (CitationStub) TableName() string {
	return "citation_stubs"
}

// NaturalKey ist der fachliche Schlüssel des Stubs, auf dem der Bulk-Store
// bei Constraint-Verletzungen isoliert. Entspricht dem Unique-Index.
func (s *CitationStub) NaturalKey() string {
	return s.EmailID + "\x1f" + s.Title
}
