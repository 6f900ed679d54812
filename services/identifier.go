package services

import (
	"context"
	"errors"
	"strings"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/providers/crossref"
)

// Registry ist die Abfrage-Schnittstelle zur bibliographischen Registry.
type Registry interface {
	// QueryBest liefert den bestplatzierten Kandidaten oder (nil, nil)
	// bei null Treffern; Transport-Fehler kommen als Fehler zurück.
	QueryBest(title, author, pubTitle string) (*crossref.Work, error)
	Name() string
}

// IdentifyResult bündelt die in einem Lauf gebauten bzw. erweiterten
// kanonischen Citations samt ihrer Stub-Referenzen.
type IdentifyResult struct {
	Citations map[string]*models.Citation
	StubIDs   map[string][]uint // DOI -> Stub-IDs dieses Laufs
	Unmatched []uint

	NewCount    int
	MergedCount int
}

// IdentifyService löst Stubs gegen die Registry auf: Fuzzy-Titelvergleich,
// Threshold-Entscheidung und Deduplizierung über die DOI.
type IdentifyService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Registry Registry
}

// NewIdentifyService erstellt eine neue Instanz des IdentifyService.
func NewIdentifyService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, registry Registry) *IdentifyService {
	return &IdentifyService{Config: cfg, DB: db, Logger: logger, Registry: registry}
}

// Identify fragt die Registry pro Stub strikt sequenziell ab (Rate-Limits
// der Registry, kein paralleles Fan-out). Ein Transport-Fehler lässt den
// betroffenen Stub unangetastet für den nächsten Lauf; fehlende Treffer,
// zu niedrige Scores und fehlende DOIs gelten als UNMATCHED.
func (s *IdentifyService) Identify(ctx context.Context, stubs []*models.CitationStub) *IdentifyResult {
	result := &IdentifyResult{
		Citations: make(map[string]*models.Citation),
		StubIDs:   make(map[string][]uint),
	}

	for _, stub := range stubs {
		select {
		case <-ctx.Done():
			s.Logger.Warn("Identifikation abgebrochen", zap.Error(ctx.Err()))
			return result
		default:
		}

		log := s.Logger.With(zap.Uint("stub_id", stub.ID), zap.String("title", stub.Title))

		work, err := s.Registry.QueryBest(stub.Title, stub.Author, stub.PubTitle)
		if err != nil {
			log.Warn("Registry nicht erreichbar, Stub bleibt offen.", zap.Error(err))
			continue
		}
		if work == nil {
			log.Debug("Keine Registry-Treffer.")
			result.Unmatched = append(result.Unmatched, stub.ID)
			continue
		}

		score := fuzzy.PartialRatio(stub.Title, work.BestTitle())
		if !s.accepts(score) {
			log.Debug("Score unter Threshold", zap.Int("score", score))
			result.Unmatched = append(result.Unmatched, stub.ID)
			continue
		}

		// Präzision vor Recall: ein Treffer ohne DOI ist kein Treffer.
		if work.DOI == "" {
			log.Debug("Kandidat ohne DOI verworfen.")
			result.Unmatched = append(result.Unmatched, stub.ID)
			continue
		}

		if _, seen := result.Citations[work.DOI]; seen {
			// Erste Treffer-Werte bleiben stehen, nur die Referenz kommt dazu.
			result.StubIDs[work.DOI] = append(result.StubIDs[work.DOI], stub.ID)
			result.MergedCount++
			log.Info("Stub in bestehende Citation gemerged", zap.String("doi", work.DOI))
			continue
		}

		result.Citations[work.DOI] = citationFromWork(work)
		result.StubIDs[work.DOI] = []uint{stub.ID}
		result.NewCount++
		log.Info("Neue kanonische Citation", zap.String("doi", work.DOI), zap.Int("score", score))
	}

	return result
}

// accepts entscheidet die Threshold-Frage: nur strikt größere Scores gelten.
func (s *IdentifyService) accepts(score int) bool {
	return score > s.Config.MatchThreshold
}

// Persist schreibt die Citations des Laufs und aktualisiert die Stub-Zeilen.
// Existiert eine DOI bereits aus einem früheren Lauf, werden nur die
// Stub-Referenzen vereinigt; die gespeicherten Felder bleiben unberührt.
func (s *IdentifyService) Persist(ctx context.Context, result *IdentifyResult) error {
	now := time.Now()
	db := s.DB.WithContext(ctx)

	for doi, citation := range result.Citations {
		ids := result.StubIDs[doi]

		var existing models.Citation
		err := db.Where("doi = ?", doi).First(&existing).Error
		switch {
		case err == nil:
			merged, mergeErr := unionIDs(&existing, ids)
			if mergeErr != nil {
				return mergeErr
			}
			if err := db.Model(&existing).Update("message_ids", existing.MessageIDs).Error; err != nil {
				return err
			}
			s.Logger.Debug("Citation aus früherem Lauf erweitert",
				zap.String("doi", doi), zap.Int("message_ids", merged))
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := citation.SetMessageIDs(ids); err != nil {
				return err
			}
			citation.IdentifiedDate = &now
			if err := db.Create(citation).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := db.Model(&models.CitationStub{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"doi":               doi,
				"id_status":         true,
				"last_registry_run": now,
			}).Error; err != nil {
			return err
		}
	}

	if len(result.Unmatched) > 0 {
		if err := db.Model(&models.CitationStub{}).Where("id IN ?", result.Unmatched).
			Update("last_registry_run", now).Error; err != nil {
			return err
		}
	}
	return nil
}

// PendingStubs liefert alle Stubs, die noch nie gegen die Registry
// aufgelöst wurden, plus Unmatched-Stubs, deren letzter Versuch länger
// als die Retry-Frist zurückliegt.
func (s *IdentifyService) PendingStubs(ctx context.Context) ([]*models.CitationStub, error) {
	cutoff := time.Now().AddDate(0, 0, -s.Config.RegistryRetryDays)

	var stubs []*models.CitationStub
	err := s.DB.WithContext(ctx).
		Where("id_status = ? AND (last_registry_run IS NULL OR last_registry_run < ?)", false, cutoff).
		Order("id").Find(&stubs).Error
	return stubs, err
}

// citationFromWork baut aus dem Registry-Kandidaten eine kanonische Citation.
func citationFromWork(work *crossref.Work) *models.Citation {
	c := &models.Citation{
		DOI:        work.DOI,
		Title:      work.BestTitle(),
		Type:       work.Type,
		Author:     ConcatenateAuthors(work.Author),
		Publisher:  work.Publisher,
		Issue:      work.Issue,
		Volume:     work.Volume,
		Page:       work.Page,
		Subject:    strings.Join(work.Subject, ","),
		IssuedDate: ResolvePartialDate(work.Issued.DateParts),
	}
	if len(work.ContainerTitle) > 0 {
		c.PubTitle = work.ContainerTitle[0]
	}
	if len(work.ISSN) > 0 {
		c.ISSN = work.ISSN[0]
	}
	if len(work.ISBN) > 0 {
		c.ISBN = work.ISBN[0]
	}
	return c
}

// ConcatenateAuthors formatiert Autorennamen als "family, given"-Paare,
// verbunden mit "; ".
func ConcatenateAuthors(authors []crossref.Author) string {
	pairs := make([]string, 0, len(authors))
	for _, a := range authors {
		pairs = append(pairs, a.Family+", "+a.Given)
	}
	return strings.Join(pairs, "; ")
}

// ResolvePartialDate löst ein Partial-Date auf: drei Komponenten direkt,
// zwei mit Tag 1, eine mit dem Jahresmittel-Anker 1. Juli, leer → nil.
func ResolvePartialDate(dateParts [][]int) *time.Time {
	if len(dateParts) == 0 || len(dateParts[0]) == 0 {
		return nil
	}
	p := dateParts[0]
	var t time.Time
	switch len(p) {
	case 3:
		t = time.Date(p[0], time.Month(p[1]), p[2], 0, 0, 0, 0, time.UTC)
	case 2:
		t = time.Date(p[0], time.Month(p[1]), 1, 0, 0, 0, 0, time.UTC)
	default:
		t = time.Date(p[0], time.July, 1, 0, 0, 0, 0, time.UTC)
	}
	return &t
}

// unionIDs vereinigt die Stub-Referenzen einer bestehenden Citation mit
// den neuen IDs und schreibt sie zurück in die jsonb-Spalte.
func unionIDs(existing *models.Citation, ids []uint) (int, error) {
	current, err := existing.GetMessageIDs()
	if err != nil {
		return 0, err
	}
	seen := make(map[uint]bool, len(current))
	for _, id := range current {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			current = append(current, id)
		}
	}
	if err := existing.SetMessageIDs(current); err != nil {
		return 0, err
	}
	return len(current), nil
}
