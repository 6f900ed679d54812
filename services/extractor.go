package services

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

// sourceTag kennzeichnet Stubs aus Scholar-Alert-Mails.
const sourceTag = "GS"

// Extractor zerlegt den HTML-Body einer Alert-Mail in Citation-Stubs.
// Reiner Transform ohne Seiteneffekte; gleicher Body ergibt gleiche Stubs.
type Extractor struct {
	Logger *zap.Logger
	Target TargetContext
}

// NewExtractor erstellt einen neuen Extractor mit den Kontext-Werten aus der Config.
func NewExtractor(cfg *config.Config, logger *zap.Logger) *Extractor {
	return &Extractor{
		Logger: logger,
		Target: TargetContext{
			PhraseTokens:  cfg.TargetPhraseTokens(),
			LabelPatterns: cfg.LabelPatternList(),
		},
	}
}

// ExtractStubs liefert einen Stub pro h3-Block in Dokumentreihenfolge.
// Blöcke ohne Titel sind keine Stubs; fehlende Bib-Zeile oder fehlendes
// Snippet sind dokumentierte Fallbacks, nie Fehler.
func (e *Extractor) ExtractStubs(email *providers.Email) ([]*models.CitationStub, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.Body))
	if err != nil {
		return nil, err
	}

	log := e.Logger.With(zap.String("email_id", email.ID))
	var stubs []*models.CitationStub

	doc.Find("h3").Each(func(_ int, block *goquery.Selection) {
		title := CleanString(block.Find("a.gse_alrt_title").Text())
		if title == "" {
			log.Debug("Block ohne Titel übersprungen.")
			return
		}

		bib := ParseBibLine(CleanString(bibLineText(block)))

		snippet := ""
		var span *int
		match := false
		if sni := block.NextAllFiltered("div.gse_alrt_sni").First(); sni.Length() > 0 {
			snippet, span, match = AnalyzeSnippet(sni, e.Target)
		}

		stub := &models.CitationStub{
			EmailID:       email.ID,
			Title:         title,
			Snippet:       snippet,
			Author:        bib.Author,
			PubTitle:      bib.PubTitle,
			PubYear:       bib.PubYear,
			Source:        sourceTag,
			Label:         email.Label,
			SnippetMatch:  match,
			HighlightSpan: span,
		}
		if !email.ReceivedDate.IsZero() {
			sent := email.ReceivedDate
			stub.SentDate = &sent
		}
		if !email.HarvestedDate.IsZero() {
			harvested := email.HarvestedDate
			stub.HarvestedDate = &harvested
		}

		log.Debug("Stub extrahiert", zap.String("title", title))
		stubs = append(stubs, stub)
	})

	return stubs, nil
}

// bibLineText liefert den Text des angrenzenden Bib-Zeilen-Blocks.
// Fehlt der Block, ist das Ergebnis der Leerstring.
func bibLineText(block *goquery.Selection) string {
	div := block.NextAllFiltered("div").First()
	if div.Length() == 0 || div.HasClass("gse_alrt_sni") {
		return ""
	}
	return div.Text()
}
