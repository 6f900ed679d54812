package crossref

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// selectFields ist die feste Metadaten-Projektion für Works-Abfragen.
const selectFields = "DOI,title,author,type,subject,container-title," +
	"publisher,issue,volume,page,ISSN,ISBN,issued"

// Fetcher kapselt die Logik zur Interaktion mit der CrossRef-Registry.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des CrossRef-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen der Registry zurück.
func (f *Fetcher) Name() string {
	return "crossref"
}

// QueryBest holt den bestplatzierten Kandidaten für Titel, Autor und
// Venue-Titel. Null Treffer liefern (nil, nil); Netzwerk- und
// Service-Fehler werden als Fehler gemeldet, nie als leeres Ergebnis.
func (f *Fetcher) QueryBest(title, author, pubTitle string) (*Work, error) {
	log := f.Logger.With(zap.String("title", title))

	params := url.Values{}
	params.Set("query.title", title)
	if author != "" {
		params.Set("query.author", author)
	}
	if pubTitle != "" {
		params.Set("query.container-title", pubTitle)
	}
	params.Set("rows", "1")
	params.Set("select", selectFields)
	if f.Config.CrossrefMailto != "" {
		params.Set("mailto", f.Config.CrossrefMailto)
	}

	queryURL := fmt.Sprintf("%s/works?%s", f.Config.CrossrefBaseURL, params.Encode())
	log.Debug("Rufe CrossRef API auf", zap.String("url", queryURL))

	resp, err := httpClient.Get(queryURL)
	if err != nil {
		return nil, fmt.Errorf("crossref-anfrage fehlgeschlagen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crossref works failed: status %d", resp.StatusCode)
	}

	var wr WorksResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("fehler beim Parsen der CrossRef-Antwort: %w", err)
	}

	if wr.Message.TotalResults == 0 || len(wr.Message.Items) == 0 {
		log.Debug("CrossRef lieferte keine Treffer.")
		return nil, nil
	}

	return &wr.Message.Items[0], nil
}
