package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

const alertFixture = `<html><body>
<h3><a class="gse_alrt_title" href="http://example.com/1">New beetles of the Cretaceous ...</a></h3>
<div>JR Smith, A Jones - Journal of Coleoptera, 2021</div>
<div class="gse_alrt_sni">specimens held at the <b>Natural</b> <b>History</b> <b>Museum</b> <b>London</b> were examined</div>
<h3><a class="gse_alrt_title" href="http://example.com/2">A revision of Carabidae</a></h3>
<div class="gse_alrt_sni">type material from <b>NHMUK</b> collections</div>
<h3><a class="gse_alrt_title" href="http://example.com/3">Notes on type material</a></h3>
<div>B Brown - 1987</div>
<h3><span>block without title anchor</span></h3>
<div>C Carter - Somewhere, 2020</div>
</body></html>`

func testExtractor() *Extractor {
	cfg := &config.Config{
		TargetPhrase:  "natural history museum london",
		LabelPatterns: "nhmuk,nhml,bmnh,bm nh,nh bm,10.5519",
	}
	return NewExtractor(cfg, zap.NewNop())
}

func TestExtractStubs(t *testing.T) {
	received := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	harvested := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	email := &providers.Email{
		ID:            "msg-1",
		Body:          alertFixture,
		Label:         "wildlife",
		ReceivedDate:  received,
		HarvestedDate: harvested,
	}

	stubs, err := testExtractor().ExtractStubs(email)
	require.NoError(t, err)
	require.Len(t, stubs, 3) // der Block ohne Titel-Anker fällt raus

	first := stubs[0]
	assert.Equal(t, "msg-1", first.EmailID)
	assert.Equal(t, "New beetles of the Cretaceous", first.Title)
	assert.Equal(t, "JR Smith, A Jones", first.Author)
	assert.Equal(t, "Journal of Coleoptera", first.PubTitle)
	require.NotNil(t, first.PubYear)
	assert.Equal(t, 2021, *first.PubYear)
	assert.Equal(t, "GS", first.Source)
	assert.Equal(t, "wildlife", first.Label)
	assert.True(t, first.SnippetMatch)
	assert.NotNil(t, first.HighlightSpan)
	require.NotNil(t, first.SentDate)
	assert.True(t, first.SentDate.Equal(received))
	require.NotNil(t, first.HarvestedDate)
	assert.True(t, first.HarvestedDate.Equal(harvested))

	// Zweiter Block: keine Bib-Zeile, Snippet folgt direkt auf das h3.
	second := stubs[1]
	assert.Equal(t, "A revision of Carabidae", second.Title)
	assert.Empty(t, second.Author)
	assert.Empty(t, second.PubTitle)
	assert.Nil(t, second.PubYear)
	assert.True(t, second.SnippetMatch)

	// Dritter Block: Bib-Zeile ohne Venue, kein Snippet.
	third := stubs[2]
	assert.Equal(t, "Notes on type material", third.Title)
	assert.Equal(t, "B Brown", third.Author)
	require.NotNil(t, third.PubYear)
	assert.Equal(t, 1987, *third.PubYear)
	assert.Empty(t, third.Snippet)
	assert.Nil(t, third.HighlightSpan)
	assert.False(t, third.SnippetMatch)
}

func TestExtractStubsDeterministic(t *testing.T) {
	email := &providers.Email{ID: "msg-2", Body: alertFixture}
	ex := testExtractor()

	a, err := ex.ExtractStubs(email)
	require.NoError(t, err)
	b, err := ex.ExtractStubs(email)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestExtractStubsEmptyBody(t *testing.T) {
	stubs, err := testExtractor().ExtractStubs(&providers.Email{ID: "msg-3", Body: "<html><body></body></html>"})
	require.NoError(t, err)
	assert.Empty(t, stubs)
}
