package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Citation ist der kanonische, über die Registry identifizierte
// Zitations-Datensatz. Die DOI bestimmt den Datensatz eindeutig; mehrere
// Stubs können auf dieselbe Citation auflösen, nie umgekehrt.
type Citation struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DOI   string `json:"doi" gorm:"column:doi;primaryKey"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`

	// "family, given"-Paare, mit "; " verbunden
	Author string `json:"author,omitempty" gorm:"type:text"`

	PubTitle  string `json:"pub_title,omitempty"` // Venue/Container-Titel
	Publisher string `json:"publisher,omitempty"`
	Issue     string `json:"issue,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Page      string `json:"page,omitempty"`
	ISSN      string `json:"issn,omitempty" gorm:"column:issn"`
	ISBN      string `json:"isbn,omitempty" gorm:"column:isbn"`

	// Aus einem Partial-Date aufgelöst; nil bei leerer date-parts-Liste.
	IssuedDate *time.Time `json:"issued_date,omitempty"`

	// Kommaseparierte Subjects
	Subject string `json:"subject,omitempty" gorm:"type:text"`

	// Stub-IDs, die in diesem Lauf auf diese DOI aufgelöst wurden
	MessageIDs datatypes.JSON `json:"message_ids" gorm:"type:jsonb"`

	IdentifiedDate *time.Time `json:"identified_date,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Citation) TableName() string {
	return "citation_store"
}

// SetMessageIDs serialisiert die Stub-Referenzen in die jsonb-Spalte.
func (c *Citation) SetMessageIDs(ids []uint) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	c.MessageIDs = datatypes.JSON(b)
	return nil
}

// GetMessageIDs liest die Stub-Referenzen aus der jsonb-Spalte.
func (c *Citation) GetMessageIDs() ([]uint, error) {
	if len(c.MessageIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := json.Unmarshal(c.MessageIDs, &ids)
	return ids, err
}
