package services

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TargetContext hält die beim Deployment vereinbarten Vergleichswerte für
// den Snippet-Abgleich: die Wort-Tokens der Zielphrase und die exakten
// Label-Abkürzungen.
type TargetContext struct {
	PhraseTokens  []string
	LabelPatterns []string
}

// AnalyzeSnippet berechnet aus einem Snippet-Fragment den bereinigten Text,
// die Distanz zwischen erster und letzter Hervorhebung im Roh-Markup sowie
// das Kontext-Match-Flag. Ohne Hervorhebungen: span nil, match false.
func AnalyzeSnippet(sel *goquery.Selection, target TargetContext) (string, *int, bool) {
	clean := CleanString(strings.Join(strings.Fields(sel.Text()), " "))

	bolds := sel.Find("b")
	if bolds.Length() == 0 {
		return clean, nil, false
	}

	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return clean, nil, false
	}

	// Offsets pro Roh-Vorkommen des kompletten <b>-Tags, damit doppelte
	// hervorgehobene Wörter nicht auf denselben Index fallen müssen.
	var offsets []int
	var boldTexts []string
	bolds.Each(func(_ int, b *goquery.Selection) {
		boldTexts = append(boldTexts, b.Text())
		if html, err := goquery.OuterHtml(b); err == nil {
			offsets = append(offsets, strings.Index(raw, html))
		}
	})
	if len(offsets) == 0 {
		return clean, nil, false
	}

	minOff, maxOff := offsets[0], offsets[0]
	for _, o := range offsets[1:] {
		if o < minOff {
			minOff = o
		}
		if o > maxOff {
			maxOff = o
		}
	}
	span := maxOff - minOff

	return clean, &span, matchesContext(boldTexts, target)
}

// matchesContext prüft, ob die hervorgehobenen Wörter die Zielphrase oder
// eine der Label-Abkürzungen treffen.
func matchesContext(boldTexts []string, target TargetContext) bool {
	boldSet := make(map[string]bool)
	for _, t := range boldTexts {
		boldSet[strings.ToLower(t)] = true
	}

	phraseSet := make(map[string]bool)
	for _, t := range target.PhraseTokens {
		phraseSet[t] = true
	}

	if len(boldSet) == len(phraseSet) && len(phraseSet) > 0 {
		equal := true
		for t := range phraseSet {
			if !boldSet[t] {
				equal = false
				break
			}
		}
		if equal {
			return true
		}
	}

	// Set-Elemente sortiert verbinden, damit der Vergleich deterministisch ist.
	keys := make([]string, 0, len(boldSet))
	for t := range boldSet {
		keys = append(keys, t)
	}
	sort.Strings(keys)
	joined := strings.Join(keys, " ")

	for _, p := range target.LabelPatterns {
		if joined == p {
			return true
		}
	}
	return false
}
