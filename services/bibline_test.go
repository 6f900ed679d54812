package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "ein Titel", CleanString("  ein Titel ..."))
	// NFKD zerlegt Umlaute in Grundbuchstabe plus kombinierendes Zeichen.
	assert.Equal(t, "Abkürzung", CleanString("Abkürzung"))
	assert.Equal(t, "", CleanString("   "))
}

func TestParseBibLine(t *testing.T) {
	year2021 := 2021
	year1999 := 1999

	tests := []struct {
		name string
		line string
		want BibData
	}{
		{
			name: "vollständige Zeile",
			line: "JR Smith, A Jones - Journal of Things, 2021",
			want: BibData{Author: "JR Smith, A Jones", PubTitle: "Journal of Things", PubYear: &year2021},
		},
		{
			name: "nur Autor und Jahr",
			line: "JR Smith - 1999",
			want: BibData{Author: "JR Smith", PubYear: &year1999},
		},
		{
			name: "nur Autor und Venue",
			line: "JR Smith - Journal of Things",
			want: BibData{Author: "JR Smith", PubTitle: "Journal of Things"},
		},
		{
			name: "kein Trenner",
			line: "JR Smith",
			want: BibData{Author: "JR Smith"},
		},
		{
			name: "Jahr nicht parsebar",
			line: "JR Smith - Journal of Things, in press",
			want: BibData{Author: "JR Smith", PubTitle: "Journal of Things"},
		},
		{
			name: "Venue mit Ellipse",
			line: "JR Smith - Proceedings of the ..., 2021",
			want: BibData{Author: "JR Smith", PubTitle: "Proceedings of the", PubYear: &year2021},
		},
		{
			name: "mehr als ein Komma im Venue",
			line: "JR Smith - Annals, Series B, 2021",
			want: BibData{Author: "JR Smith", PubTitle: "Annals"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseBibLine(tc.line)
			assert.Equal(t, tc.want.Author, got.Author)
			assert.Equal(t, tc.want.PubTitle, got.PubTitle)
			if tc.want.PubYear == nil {
				assert.Nil(t, got.PubYear)
			} else {
				require.NotNil(t, got.PubYear)
				assert.Equal(t, *tc.want.PubYear, *got.PubYear)
			}
		})
	}
}
