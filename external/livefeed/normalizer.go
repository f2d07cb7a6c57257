package livefeed

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/usecase"
	"github.com/shopspring/decimal"
)

const (
	mainResultGroup = 1
	marketTeam1Win  = 1
	marketDraw      = 2
	marketTeam2Win  = 3

	scoreKeyTeam1 = "Team1Scores"
	scoreKeyTeam2 = "Team2Scores"
)

var (
	_ usecase.SnapshotNormalizer = (*Normalizer)(nil)

	hundred = decimal.NewFromInt(100)
)

// Normalizer maps raw feed entries to match records. It is pure: the same
// entries and location always produce the same records.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

func (n *Normalizer) Normalize(raw usecase.RawSnapshot) iter.Seq2[livematch.Record, error] {
	return func(yield func(livematch.Record, error) bool) {
		for idx, entry := range raw.Entries {
			record, err := n.normalizeEntry(entry)
			if err != nil {
				recErr := &usecase.RecordError{Index: idx, MatchID: record.MatchID, Err: err}
				if !yield(livematch.Record{}, recErr) {
					return
				}
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

func (n *Normalizer) normalizeEntry(raw []byte) (livematch.Record, error) {
	var entry feedEntry
	if err := sonic.Unmarshal(raw, &entry); err != nil {
		return livematch.Record{}, crerr.Wrap(err, "decode entry")
	}
	matchID, err := entryMatchID(entry.ID)
	if err != nil {
		return livematch.Record{}, err
	}

	record := livematch.Record{
		MatchID:  matchID,
		SportID:  entry.SportID,
		Sport:    strings.TrimSpace(entry.SportName),
		LeagueID: entry.LeagueID,
		League:   strings.TrimSpace(entry.League),
		Teams:    [2]string{strings.TrimSpace(entry.Team1), strings.TrimSpace(entry.Team2)},
		Score:    parseLiveScore(entry.Score),
	}
	if entry.StartUnix > 0 {
		record.StartTime = time.Unix(entry.StartUnix, 0).In(n.loc).Format(time.RFC3339)
	}

	odds := parseOdds(entry.Markets)
	if !odds.Empty() {
		record.Odds = &odds
	}
	if !entry.WinChances.empty() {
		record.WinProbability = feedWinProbability(*entry.WinChances)
	} else if record.Odds != nil {
		record.WinProbability = impliedWinProbability(odds)
	}

	if err := record.Validate(); err != nil {
		return record, err
	}
	return record, nil
}

func parseLiveScore(block *scoreBlock) *livematch.Score {
	if block == nil {
		return nil
	}

	score := &livematch.Score{
		Status:        livematch.StatusNotAvailable,
		CurrentPeriod: strings.TrimSpace(block.Period),
		MatchSeconds:  block.Seconds,
		Team1:         livematch.ScoreNotAvailable,
		Team2:         livematch.ScoreNotAvailable,
	}
	if block.Status != nil {
		score.Status = *block.Status
	}

	for _, part := range block.Scores {
		switch part.Key {
		case scoreKeyTeam1:
			score.Team1 = part.Value.Or(livematch.ScoreNotAvailable)
		case scoreKeyTeam2:
			score.Team2 = part.Value.Or(livematch.ScoreNotAvailable)
		}
	}

	// Set-based sports carry sets, games and points in separate blocks.
	if block.SubScore != nil && len(block.Periods) > 0 {
		var sets sidePair
		if block.FullScore != nil {
			sets = *block.FullScore
		}
		games := block.Periods[0].Value
		points := *block.SubScore

		score.Team1 = fmt.Sprintf("Sets: %s, Games: %s, Points: %s", sets.S1.Or("0"), games.S1.Or("0"), points.S1.Or("0"))
		score.Team2 = fmt.Sprintf("Sets: %s, Games: %s, Points: %s", sets.S2.Or("0"), games.S2.Or("0"), points.S2.Or("0"))
	}

	return score
}

func parseOdds(markets []market) livematch.Odds {
	var odds livematch.Odds
	for _, item := range markets {
		if item.Group != mainResultGroup {
			continue
		}
		coef := item.Coef
		switch item.Type {
		case marketTeam1Win:
			odds.Team1Win = &coef
		case marketDraw:
			odds.Draw = &coef
		case marketTeam2Win:
			odds.Team2Win = &coef
		}
	}
	return odds
}

// entryMatchID keys a match on the text of "I". Integer ids must be
// positive; any other text is kept as-is.
func entryMatchID(id flexString) (string, error) {
	text := strings.TrimSpace(id.Value)
	if !id.Set || text == "" {
		return "", crerr.New("entry has no match id")
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n <= 0 {
			return "", crerr.Newf("entry has invalid match id %d", n)
		}
		return strconv.FormatInt(n, 10), nil
	}
	return text, nil
}

func feedWinProbability(chances winChanceSet) *livematch.WinProbability {
	out := &livematch.WinProbability{
		Team1Percent: asPercent(chances.P1),
		Team2Percent: asPercent(chances.P2),
		Source:       livematch.ProbabilitySourceFeed,
	}
	if chances.PX != nil {
		draw := asPercent(chances.PX)
		out.DrawPercent = &draw
	}
	return out
}

func asPercent(value *float64) float64 {
	if value == nil {
		return 0
	}
	return decimal.NewFromFloat(*value).Mul(hundred).Round(2).InexactFloat64()
}

// impliedWinProbability turns decimal odds into percentages that sum to 100.
// Missing or non-positive prices contribute nothing.
func impliedWinProbability(odds livematch.Odds) *livematch.WinProbability {
	team1 := inverse(odds.Team1Win)
	draw := inverse(odds.Draw)
	team2 := inverse(odds.Team2Win)

	total := team1.Add(draw).Add(team2)
	if total.IsZero() {
		return nil
	}

	share := func(p decimal.Decimal) float64 {
		return p.Div(total).Mul(hundred).Round(2).InexactFloat64()
	}

	out := &livematch.WinProbability{
		Team1Percent: share(team1),
		Team2Percent: share(team2),
		Source:       livematch.ProbabilitySourceOdds,
	}
	if draw.IsPositive() {
		drawPercent := share(draw)
		out.DrawPercent = &drawPercent
	}
	return out
}

func inverse(price *float64) decimal.Decimal {
	if price == nil || *price <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromFloat(*price))
}
