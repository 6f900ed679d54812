package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NaturalHistoryMuseum/Pipe/models"
)

// pgUniqueViolation ist der SQLSTATE-Code für unique_violation.
const pgUniqueViolation = "23505"

// keyDetailRgx zieht die Schlüsselwerte aus dem Postgres-Fehlerdetail,
// z.B. `Key (email_id, title)=(abc123, Some Title) already exists.`
var keyDetailRgx = regexp.MustCompile(`Key \([^)]+\)=\((.+)\)`)

// BulkStore persistiert Stub-Listen in einem Flush und isoliert bei
// Constraint-Verletzungen genau die Datensätze des verletzenden Schlüssels,
// statt den ganzen Batch zu verwerfen.
type BulkStore struct {
	DB     *gorm.DB
	Logger *zap.Logger

	// In Tests austauschbar
	flush        func(ctx context.Context, records []*models.CitationStub) error
	offendingKey func(err error) (string, bool)
}

// NewBulkStore erstellt einen BulkStore mit Postgres-Flush und
// pgconn-basierter Schlüssel-Extraktion.
func NewBulkStore(db *gorm.DB, logger *zap.Logger) *BulkStore {
	bs := &BulkStore{DB: db, Logger: logger}
	bs.flush = bs.insertAll
	bs.offendingKey = pgOffendingKey
	return bs
}

// Store persistiert alle Datensätze. Scheitert der Flush an einer
// Verletzung mit identifizierbarem Schlüssel, werden die betroffenen
// Datensätze entfernt und der Rest rekursiv erneut geschrieben. Nicht
// identifizierbare Fehler sind fatal und werden durchgereicht.
func (bs *BulkStore) Store(ctx context.Context, records []*models.CitationStub) (stored, excluded []*models.CitationStub, err error) {
	if len(records) == 0 {
		return nil, nil, nil
	}

	if err := bs.flush(ctx, records); err == nil {
		return records, nil, nil
	} else {
		key, ok := bs.offendingKey(err)
		if !ok {
			return nil, nil, err
		}

		var remainder, removed []*models.CitationStub
		for _, r := range records {
			if r.NaturalKey() == key {
				removed = append(removed, r)
			} else {
				remainder = append(remainder, r)
			}
		}

		// Abwehr gegen Endlos-Rekursion: schrumpft die Liste nicht,
		// identifiziert der Schlüssel keinen unserer Datensätze.
		if len(removed) == 0 {
			return nil, nil, err
		}

		bs.Logger.Warn("Datensatz wegen Constraint-Verletzung ausgeschlossen",
			zap.String("natural_key", strings.ReplaceAll(key, "\x1f", " | ")),
			zap.Int("excluded", len(removed)),
			zap.Int("remaining", len(remainder)))

		stored, moreExcluded, err := bs.Store(ctx, remainder)
		return stored, append(removed, moreExcluded...), err
	}
}

// insertAll schreibt alle Datensätze in einer Transaktion.
func (bs *BulkStore) insertAll(ctx context.Context, records []*models.CitationStub) error {
	return bs.DB.WithContext(ctx).Create(&records).Error
}

// pgOffendingKey extrahiert den fachlichen Schlüssel aus einer
// Postgres-unique_violation. Liefert false für alle anderen Fehler.
func pgOffendingKey(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return "", false
	}
	m := keyDetailRgx.FindStringSubmatch(pgErr.Detail)
	if len(m) < 2 {
		return "", false
	}
	// email_id enthält kein Komma, daher trennt das erste ", " die beiden
	// Spalten des Index (email_id, title).
	parts := strings.SplitN(m[1], ", ", 2)
	return strings.Join(parts, "\x1f"), true
}
