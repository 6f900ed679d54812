package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/storage"
)

type ExportConfig struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST" required:"true"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB" required:"true"`
	ExportBucket     string `envconfig:"EXPORT_S3_BUCKET" required:"true"`
	ExportEndpoint   string `envconfig:"EXPORT_S3_ENDPOINT" required:"true"`
	ExportAccessKey  string `envconfig:"EXPORT_S3_ACCESS_KEY" required:"true"`
	ExportSecretKey  string `envconfig:"EXPORT_S3_SECRET_KEY" required:"true"`
	ExportRegion     string `envconfig:"EXPORT_S3_REGION" required:"true"`
	KeepExports      int    `envconfig:"KEEP_EXPORTS" default:"4"`
}

// exportPayload ist das Archiv-Format: beide Tabellen in einem Dokument,
// damit ein Archiv für sich genommen vollständig ist.
type exportPayload struct {
	ExportedAt time.Time             `json:"exported_at"`
	Stubs      []models.CitationStub `json:"citation_stubs"`
	Citations  []models.Citation     `json:"citation_store"`
}

func main() {
	log.Println("Starte Export-Prozess...")

	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatalf("Fehler beim Verbinden mit der Datenbank: %v", err)
	}

	ctx := context.Background()

	data, err := buildArchive(ctx, db)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Archivs: %v", err)
	}

	opts := storage.S3Options{
		Endpoint:  cfg.ExportEndpoint,
		Region:    cfg.ExportRegion,
		AccessKey: cfg.ExportAccessKey,
		SecretKey: cfg.ExportSecretKey,
		Bucket:    cfg.ExportBucket,
	}
	client, err := storage.NewS3Client(ctx, opts)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	key := fmt.Sprintf("export-%s.json.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadArchive(ctx, client, opts, key, data)
	if err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Export erfolgreich hochgeladen: %s", link)

	deleted, err := storage.RotateArchives(ctx, client, opts, cfg.KeepExports)
	if err != nil {
		log.Fatalf("Fehler bei der Rotation alter Exporte: %v", err)
	}
	for _, k := range deleted {
		log.Printf("Altes Archiv gelöscht: %s", k)
	}

	log.Println("Export-Prozess erfolgreich abgeschlossen.")
}

func buildArchive(ctx context.Context, db *gorm.DB) ([]byte, error) {
	payload := exportPayload{ExportedAt: time.Now().UTC()}

	if err := db.WithContext(ctx).Order("id").Find(&payload.Stubs).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Order("doi").Find(&payload.Citations).Error; err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
