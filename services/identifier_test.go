package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/providers/crossref"
)

type fakeRegistry struct {
	queryFunc func(title, author, pubTitle string) (*crossref.Work, error)
}

func (f *fakeRegistry) QueryBest(title, author, pubTitle string) (*crossref.Work, error) {
	return f.queryFunc(title, author, pubTitle)
}
func (f *fakeRegistry) Name() string { return "fake" }

func identifyService(registry Registry) *IdentifyService {
	cfg := &config.Config{MatchThreshold: 90}
	return NewIdentifyService(cfg, nil, zap.NewNop(), registry)
}

func workFor(doi, title string) *crossref.Work {
	return &crossref.Work{DOI: doi, Title: []string{title}, Type: "journal-article"}
}

func TestIdentifyNewCitation(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return workFor("10.1234/abc", title), nil
		},
	}
	svc := identifyService(registry)
	stubs := []*models.CitationStub{{ID: 7, Title: "A revision of Carabidae"}}

	result := svc.Identify(context.Background(), stubs)

	assert.Equal(t, 1, result.NewCount)
	assert.Equal(t, 0, result.MergedCount)
	assert.Empty(t, result.Unmatched)
	require.Contains(t, result.Citations, "10.1234/abc")
	assert.Equal(t, []uint{7}, result.StubIDs["10.1234/abc"])
}

func TestIdentifyDeduplicatesByDOI(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return workFor("10.1234/abc", title), nil
		},
	}
	svc := identifyService(registry)
	stubs := []*models.CitationStub{
		{ID: 1, Title: "A revision of Carabidae"},
		{ID: 2, Title: "A revision of Carabidae"},
	}

	result := svc.Identify(context.Background(), stubs)

	assert.Equal(t, 1, result.NewCount)
	assert.Equal(t, 1, result.MergedCount)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, []uint{1, 2}, result.StubIDs["10.1234/abc"])
}

func TestIdentifyLowScoreIsUnmatched(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return workFor("10.1234/xyz", "completely unrelated candidate record"), nil
		},
	}
	svc := identifyService(registry)
	stubs := []*models.CitationStub{{ID: 3, Title: "A revision of Carabidae"}}

	result := svc.Identify(context.Background(), stubs)

	assert.Empty(t, result.Citations)
	assert.Equal(t, []uint{3}, result.Unmatched)
}

func TestIdentifyZeroResultsIsUnmatched(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return nil, nil
		},
	}
	svc := identifyService(registry)

	result := svc.Identify(context.Background(), []*models.CitationStub{{ID: 4, Title: "anything"}})

	assert.Empty(t, result.Citations)
	assert.Equal(t, []uint{4}, result.Unmatched)
}

func TestIdentifyMissingDOIIsUnmatched(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return workFor("", title), nil
		},
	}
	svc := identifyService(registry)

	result := svc.Identify(context.Background(), []*models.CitationStub{{ID: 5, Title: "anything"}})

	assert.Empty(t, result.Citations)
	assert.Equal(t, []uint{5}, result.Unmatched)
}

func TestIdentifyRegistryErrorLeavesStubPending(t *testing.T) {
	registry := &fakeRegistry{
		queryFunc: func(title, author, pubTitle string) (*crossref.Work, error) {
			return nil, errors.New("registry unreachable")
		},
	}
	svc := identifyService(registry)

	result := svc.Identify(context.Background(), []*models.CitationStub{{ID: 6, Title: "anything"}})

	// Transport-Fehler ist weder Match noch UNMATCHED: der Stub bleibt
	// für den nächsten Lauf offen.
	assert.Empty(t, result.Citations)
	assert.Empty(t, result.Unmatched)
}

func TestAcceptsThresholdIsStrict(t *testing.T) {
	svc := identifyService(nil)

	assert.False(t, svc.accepts(89))
	assert.False(t, svc.accepts(90))
	assert.True(t, svc.accepts(91))
}

func TestConcatenateAuthors(t *testing.T) {
	authors := []crossref.Author{
		{Family: "Smith", Given: "John R."},
		{Family: "Jones", Given: "Anna"},
	}
	assert.Equal(t, "Smith, John R.; Jones, Anna", ConcatenateAuthors(authors))
	assert.Equal(t, "", ConcatenateAuthors(nil))
}

func TestResolvePartialDate(t *testing.T) {
	tests := []struct {
		name  string
		parts [][]int
		want  *time.Time
	}{
		{
			name:  "drei Komponenten",
			parts: [][]int{{2020, 5, 3}},
			want:  timePtr(time.Date(2020, 5, 3, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "zwei Komponenten",
			parts: [][]int{{2020, 5}},
			want:  timePtr(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "nur Jahr",
			parts: [][]int{{2020}},
			want:  timePtr(time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "leer",
			parts: [][]int{},
			want:  nil,
		},
		{
			name:  "leere innere Liste",
			parts: [][]int{{}},
			want:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolvePartialDate(tc.parts)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(*tc.want))
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCitationFromWork(t *testing.T) {
	work := &crossref.Work{
		DOI:            "10.1234/abc",
		Title:          []string{"A revision of Carabidae"},
		Type:           "journal-article",
		Author:         []crossref.Author{{Family: "Smith", Given: "J."}},
		ContainerTitle: []string{"Journal of Coleoptera"},
		Publisher:      "Example Press",
		Issue:          "2",
		Volume:         "14",
		Page:           "101-120",
		ISSN:           []string{"1234-5678"},
		Subject:        []string{"Entomology", "Taxonomy"},
		Issued:         crossref.Partial{DateParts: [][]int{{2021, 3}}},
	}

	c := citationFromWork(work)

	assert.Equal(t, "10.1234/abc", c.DOI)
	assert.Equal(t, "A revision of Carabidae", c.Title)
	assert.Equal(t, "Smith, J.", c.Author)
	assert.Equal(t, "Journal of Coleoptera", c.PubTitle)
	assert.Equal(t, "1234-5678", c.ISSN)
	assert.Equal(t, "Entomology,Taxonomy", c.Subject)
	require.NotNil(t, c.IssuedDate)
	assert.True(t, c.IssuedDate.Equal(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestUnionIDs(t *testing.T) {
	existing := &models.Citation{DOI: "10.1234/abc"}
	require.NoError(t, existing.SetMessageIDs([]uint{1, 2}))

	total, err := unionIDs(existing, []uint{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	ids, err := existing.GetMessageIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)
}
