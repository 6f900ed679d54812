package models

import "time"

// RunLog protokolliert eine Pipeline-Ausführung mit ihren Summenzählern.
// Ein Lauf mit null neuen Mails oder null Matches ist ein gültiges,
// stilles Ergebnis und kein Fehlerzustand.
type RunLog struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	EmailsRetrieved int `json:"emails_retrieved"`
	StubsExtracted  int `json:"stubs_extracted"`
	StubsStored     int `json:"stubs_stored"`
	StubsExcluded   int `json:"stubs_excluded"`

	CitationsNew    int `json:"citations_new"`
	CitationsMerged int `json:"citations_merged"`
	StubsUnmatched  int `json:"stubs_unmatched"`

	Error string `json:"error,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (RunLog) TableName() string {
	return "run_log"
}
