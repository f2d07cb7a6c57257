package livematch

import (
	"reflect"
	"sort"
	"time"
)

const (
	ProbabilitySourceFeed = "feed"
	ProbabilitySourceOdds = "odds"

	StatusNotAvailable = "Not available"
	ScoreNotAvailable  = "N/A"
)

// Score is the live scoreboard as rendered for consumers.
type Score struct {
	Status        string `json:"status"`
	CurrentPeriod string `json:"current_period,omitempty"`
	MatchSeconds  *int   `json:"match_seconds,omitempty"`
	Team1         string `json:"team1_score"`
	Team2         string `json:"team2_score"`
}

// Odds holds the main-result market prices (decimal odds).
type Odds struct {
	Team1Win *float64 `json:"team1_win,omitempty"`
	Draw     *float64 `json:"draw,omitempty"`
	Team2Win *float64 `json:"team2_win,omitempty"`
}

func (o Odds) Empty() bool {
	return o.Team1Win == nil && o.Draw == nil && o.Team2Win == nil
}

type WinProbability struct {
	Team1Percent float64  `json:"team1_percent"`
	DrawPercent  *float64 `json:"draw_percent,omitempty"`
	Team2Percent float64  `json:"team2_percent"`
	Source       string   `json:"source"`
}

// SyncMeta is updater bookkeeping. Consumers should ignore it.
type SyncMeta struct {
	FirstSeenCycle int64     `json:"first_seen_cycle"`
	LastSeenCycle  int64     `json:"last_seen_cycle"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Record is one live or upcoming match.
type Record struct {
	MatchID        string          `json:"match_id" validate:"required"`
	SportID        int             `json:"sport_id" validate:"gt=0"`
	Sport          string          `json:"sport,omitempty"`
	LeagueID       int64           `json:"league_id,omitempty"`
	League         string          `json:"league,omitempty"`
	Teams          [2]string       `json:"teams" validate:"dive,required"`
	StartTime      string          `json:"start_time,omitempty"`
	Score          *Score          `json:"live_score,omitempty"`
	Odds           *Odds           `json:"odds,omitempty"`
	WinProbability *WinProbability `json:"win_probability,omitempty"`
	Sync           SyncMeta        `json:"_sync"`
}

// SameContent compares every consumer-visible field, ignoring SyncMeta.
func (r Record) SameContent(other Record) bool {
	r.Sync = SyncMeta{}
	other.Sync = SyncMeta{}
	return reflect.DeepEqual(r, other)
}

// Database maps match id to its record.
type Database map[string]Record

func (d Database) Clone() Database {
	out := make(Database, len(d))
	for key, value := range d {
		out[key] = value
	}
	return out
}

// LastCycle returns the highest cycle any record was seen in.
func (d Database) LastCycle() int64 {
	var last int64
	for _, record := range d {
		if record.Sync.LastSeenCycle > last {
			last = record.Sync.LastSeenCycle
		}
	}
	return last
}

func (d Database) MatchIDs() []string {
	out := make([]string, 0, len(d))
	for key := range d {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (d Database) CountBySport() map[int]int {
	out := make(map[int]int)
	for _, record := range d {
		out[record.SportID]++
	}
	return out
}
