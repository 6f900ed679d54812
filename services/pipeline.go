package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NaturalHistoryMuseum/Pipe/models"
)

// Pipeline verkettet Harvest und Identifikation zu einem Gesamtlauf und
// protokolliert das Ergebnis im run_log.
type Pipeline struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Harvest  *HarvestService
	Identify *IdentifyService
}

// NewPipeline erstellt eine neue Pipeline.
func NewPipeline(db *gorm.DB, logger *zap.Logger, harvest *HarvestService, identify *IdentifyService) *Pipeline {
	return &Pipeline{DB: db, Logger: logger, Harvest: harvest, Identify: identify}
}

// RunOnce führt einen vollständigen Lauf aus: Mails einsammeln, Stubs
// extrahieren und speichern, offene Stubs gegen die Registry auflösen.
// Der RunLog-Eintrag wird auch bei Fehlern geschrieben.
func (p *Pipeline) RunOnce(ctx context.Context) (*models.RunLog, error) {
	run := &models.RunLog{StartedAt: time.Now()}

	stubs, emailCount := p.Harvest.Run(ctx)
	run.EmailsRetrieved = emailCount
	run.StubsExtracted = len(stubs)

	stored, excluded, err := p.Harvest.Store(ctx, stubs)
	run.StubsStored = len(stored)
	run.StubsExcluded = len(excluded)
	if err != nil {
		return p.finish(ctx, run, err)
	}

	pending, err := p.Identify.PendingStubs(ctx)
	if err != nil {
		return p.finish(ctx, run, err)
	}

	result := p.Identify.Identify(ctx, pending)
	run.CitationsNew = result.NewCount
	run.CitationsMerged = result.MergedCount
	run.StubsUnmatched = len(result.Unmatched)

	if err := p.Identify.Persist(ctx, result); err != nil {
		return p.finish(ctx, run, err)
	}

	p.Logger.Info("Lauf abgeschlossen",
		zap.Int("emails", run.EmailsRetrieved),
		zap.Int("stubs_extracted", run.StubsExtracted),
		zap.Int("stubs_stored", run.StubsStored),
		zap.Int("stubs_excluded", run.StubsExcluded),
		zap.Int("citations_new", run.CitationsNew),
		zap.Int("citations_merged", run.CitationsMerged),
		zap.Int("stubs_unmatched", run.StubsUnmatched))

	return p.finish(ctx, run, nil)
}

func (p *Pipeline) finish(ctx context.Context, run *models.RunLog, runErr error) (*models.RunLog, error) {
	now := time.Now()
	run.FinishedAt = &now
	if runErr != nil {
		run.Error = runErr.Error()
		p.Logger.Error("Lauf mit Fehler beendet", zap.Error(runErr))
	}
	if err := p.DB.WithContext(ctx).Create(run).Error; err != nil {
		p.Logger.Error("RunLog konnte nicht geschrieben werden", zap.Error(err))
	}
	return run, runErr
}
