package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

// HarvestService orchestriert Mail-Abruf und Stub-Extraktion über alle
// konfigurierten Provider.
type HarvestService struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *zap.Logger
	Providers []providers.MailProvider
	Extractor *Extractor
	Bulk      *BulkStore
}

// NewHarvestService erstellt eine neue Instanz des HarvestService.
func NewHarvestService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, provs []providers.MailProvider) *HarvestService {
	return &HarvestService{
		Config:    cfg,
		DB:        db,
		Logger:    logger,
		Providers: provs,
		Extractor: NewExtractor(cfg, logger),
		Bulk:      NewBulkStore(db, logger),
	}
}

// Run holt alle ungelesenen Mails und extrahiert Stubs in Abrufreihenfolge.
// Ein nicht erreichbarer Provider trägt nichts bei; null neue Stubs sind
// ein gültiges, stilles Ergebnis und kein Fehler.
func (h *HarvestService) Run(ctx context.Context) ([]*models.CitationStub, int) {
	var stubs []*models.CitationStub
	emailCount := 0

	for _, p := range h.Providers {
		log := h.Logger.With(zap.String("provider", p.Name()))

		emails, err := p.GetEmails()
		if err != nil {
			log.Warn("Mail-Abruf fehlgeschlagen, Provider übersprungen.", zap.Error(err))
			continue
		}
		log.Info("Neue Mails abgerufen", zap.Int("count", len(emails)))
		emailCount += len(emails)

		for _, email := range emails {
			extracted, err := h.Extractor.ExtractStubs(email)
			if err != nil {
				log.Warn("Mail-Body nicht parsebar, Mail übersprungen.",
					zap.String("email_id", email.ID), zap.Error(err))
				continue
			}
			stubs = append(stubs, extracted...)
		}
	}

	h.Logger.Info("Harvest abgeschlossen",
		zap.Int("emails", emailCount), zap.Int("stubs", len(stubs)))
	return stubs, emailCount
}

// Store persistiert die Stubs über den resilienten Bulk-Store.
func (h *HarvestService) Store(ctx context.Context, stubs []*models.CitationStub) (stored, excluded []*models.CitationStub, err error) {
	return h.Bulk.Store(ctx, stubs)
}
