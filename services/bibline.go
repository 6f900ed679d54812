package services

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// BibData ist das Ergebnis des Bib-Zeilen-Parsings: Autor-Segment plus
// optional Venue-Titel und Jahr.
type BibData struct {
	Author   string
	PubTitle string
	PubYear  *int
}

// CleanString normalisiert nach NFKD, entfernt literale "..."-Marker
// und trimmt Whitespace.
func CleanString(s string) string {
	s = norm.NFKD.String(s)
	s = strings.ReplaceAll(s, "...", "")
	return strings.TrimSpace(s)
}

// ParseBibLine zerlegt eine bereinigte Bib-Zeile der Form
// "<autor> - <venue>, <jahr>". Die Heuristik ist bewusst verlustbehaftet:
// Venues mit mehr als einem Komma werden nicht rekonstruiert.
func ParseBibLine(line string) BibData {
	var out BibData

	parsed := strings.SplitN(line, " - ", 2)
	out.Author = CleanString(parsed[0])

	if len(parsed) < 2 {
		return out
	}

	rest := strings.Split(parsed[1], ",")
	if len(rest) == 2 {
		out.PubTitle = CleanString(rest[0])
		if year, err := strconv.Atoi(CleanString(rest[1])); err == nil {
			out.PubYear = &year
		}
		return out
	}

	// Abweichende Feldanzahl: nur das erste Stück verwenden. Ist es kein
	// Jahr, wird es als Venue-Titel übernommen.
	first := CleanString(rest[0])
	if year, err := strconv.Atoi(first); err == nil {
		out.PubYear = &year
	} else {
		out.PubTitle = first
	}
	return out
}
