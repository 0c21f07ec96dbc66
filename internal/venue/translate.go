package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// LabelTranslator treats the raw market id as a label template such as
// "Total Over(%s)" and fills in the parameter. It is used when a venue
// carries no translation table of its own.
type LabelTranslator struct{}

// Translate implements Translator.
func (LabelTranslator) Translate(_ context.Context, _ string, rawMarketID, parameter string) (domain.Market, error) {
	label := rawMarketID
	if strings.Contains(label, "%s") {
		label = fmt.Sprintf(label, strings.TrimSpace(parameter))
	}
	m, err := domain.ParseMarket(label)
	if err != nil {
		return domain.Market{}, fmt.Errorf("%w: %q: %v", ErrTranslation, label, err)
	}
	return m, nil
}

var _ Translator = LabelTranslator{}

// MatchEvent finds the live event whose team names best match q. Both teams
// must match; a reversed home/away pairing is accepted.
func MatchEvent(q EventQuery, events []EventRef) (EventRef, bool) {
	home := normalizeTeam(q.HomeTeam)
	away := normalizeTeam(q.AwayTeam)
	if home == "" || away == "" {
		return EventRef{}, false
	}

	best := -1
	var out EventRef
	for _, ev := range events {
		eh, ea := normalizeTeam(ev.HomeTeam), normalizeTeam(ev.AwayTeam)
		score := teamScore(home, eh) + teamScore(away, ea)
		if swapped := teamScore(home, ea) + teamScore(away, eh); swapped > score {
			score = swapped
		}
		if score >= 4 && score > best {
			best, out = score, ev
		}
	}
	return out, best >= 0
}

// teamScore rates how well two normalized names match: 3 exact, 2 for
// containment or a shared token of four or more letters, 0 otherwise.
func teamScore(a, b string) int {
	switch {
	case a == "" || b == "":
		return 0
	case a == b:
		return 3
	case strings.Contains(a, b) || strings.Contains(b, a):
		return 2
	}
	for _, ta := range strings.Fields(a) {
		if len(ta) < 4 {
			continue
		}
		for _, tb := range strings.Fields(b) {
			if ta == tb {
				return 2
			}
		}
	}
	return 0
}

var teamNoise = strings.NewReplacer(".", " ", "-", " ", "'", "", "(", " ", ")", " ")

func normalizeTeam(s string) string {
	s = strings.ToLower(teamNoise.Replace(s))
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		switch f {
		case "fc", "cf", "sc", "ac", "afc", "the", "club":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
