package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

type fakeMailProvider struct {
	name   string
	emails []*providers.Email
	err    error
}

func (f *fakeMailProvider) GetEmails() ([]*providers.Email, error) { return f.emails, f.err }
func (f *fakeMailProvider) Name() string                           { return f.name }

func harvestConfig() *config.Config {
	return &config.Config{
		TargetPhrase:  "natural history museum london",
		LabelPatterns: "nhmuk",
	}
}

func TestHarvestRun(t *testing.T) {
	body := `<html><body>
<h3><a class="gse_alrt_title" href="#">First Title</a></h3>
<div>A Author - Journal, 2020</div>
<h3><a class="gse_alrt_title" href="#">Second Title</a></h3>
<div>B Author - Other Journal, 2021</div>
</body></html>`

	provider := &fakeMailProvider{
		name:   "fake",
		emails: []*providers.Email{{ID: "m1", Body: body, Label: "test"}},
	}
	h := NewHarvestService(harvestConfig(), nil, zap.NewNop(), []providers.MailProvider{provider})

	stubs, emailCount := h.Run(context.Background())

	assert.Equal(t, 1, emailCount)
	require.Len(t, stubs, 2)
	assert.Equal(t, "First Title", stubs[0].Title)
	assert.Equal(t, "Second Title", stubs[1].Title)
}

func TestHarvestRunFailingProviderIsQuiet(t *testing.T) {
	failing := &fakeMailProvider{name: "broken", err: errors.New("mailbox unreachable")}
	h := NewHarvestService(harvestConfig(), nil, zap.NewNop(), []providers.MailProvider{failing})

	stubs, emailCount := h.Run(context.Background())

	assert.Empty(t, stubs)
	assert.Equal(t, 0, emailCount)
}

func TestHarvestRunMixedProviders(t *testing.T) {
	body := `<html><body><h3><a class="gse_alrt_title" href="#">Only Title</a></h3></body></html>`
	ok := &fakeMailProvider{name: "ok", emails: []*providers.Email{{ID: "m2", Body: body}}}
	failing := &fakeMailProvider{name: "broken", err: errors.New("auth failed")}

	h := NewHarvestService(harvestConfig(), nil, zap.NewNop(), []providers.MailProvider{failing, ok})

	stubs, emailCount := h.Run(context.Background())

	assert.Equal(t, 1, emailCount)
	require.Len(t, stubs, 1)
	assert.Equal(t, "Only Title", stubs[0].Title)
}
