package venue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestLabelTranslator(t *testing.T) {
	var tr LabelTranslator
	m, err := tr.Translate(context.Background(), "soccer", "Total Over(%s)", "2.5")
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyTotal, m.Family)
	assert.Equal(t, domain.SideOver, m.Side)
	assert.True(t, m.Line.Equal(decimal.RequireFromString("2.5")))

	m, err = tr.Translate(context.Background(), "soccer", "Asian Handicap1(%s)", "-0.75")
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyHandicap, m.Family)

	_, err = tr.Translate(context.Background(), "soccer", "", "")
	assert.ErrorIs(t, err, ErrTranslation)
}

func TestMatchEvent(t *testing.T) {
	events := []EventRef{
		{EventID: "1", HomeTeam: "Manchester United", AwayTeam: "Liverpool FC"},
		{EventID: "2", HomeTeam: "Real Madrid", AwayTeam: "FC Barcelona"},
		{EventID: "3", HomeTeam: "Manchester City", AwayTeam: "Chelsea"},
	}

	ev, ok := MatchEvent(EventQuery{HomeTeam: "Man. United", AwayTeam: "Liverpool"}, events)
	require.True(t, ok)
	assert.Equal(t, "1", ev.EventID)

	ev, ok = MatchEvent(EventQuery{HomeTeam: "Barcelona", AwayTeam: "Real Madrid CF"}, events)
	require.True(t, ok)
	assert.Equal(t, "2", ev.EventID)

	_, ok = MatchEvent(EventQuery{HomeTeam: "Arsenal", AwayTeam: "Chelsea"}, events)
	assert.False(t, ok)

	_, ok = MatchEvent(EventQuery{HomeTeam: "", AwayTeam: "Chelsea"}, events)
	assert.False(t, ok)
}
