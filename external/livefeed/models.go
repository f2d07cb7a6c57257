package livefeed

import (
	"bytes"
	"encoding/json"
	"strconv"

	sonic "github.com/bytedance/sonic"
)

type envelope struct {
	Success *bool             `json:"Success"`
	Error   string            `json:"Error"`
	Value   []json.RawMessage `json:"Value"`
}

type feedEntry struct {
	ID         flexString    `json:"I"`
	SportID    int           `json:"SI"`
	SportName  string        `json:"SN"`
	League     string        `json:"L"`
	LeagueID   int64         `json:"LI"`
	Team1      string        `json:"O1"`
	Team2      string        `json:"O2"`
	StartUnix  int64         `json:"S"`
	Score      *scoreBlock   `json:"SC"`
	Markets    []market      `json:"E"`
	WinChances *winChanceSet `json:"WP"`
}

type scoreBlock struct {
	Status    *string       `json:"SLS"`
	Period    string        `json:"CPS"`
	Seconds   *int          `json:"TS"`
	Scores    []scorePart   `json:"S"`
	FullScore *sidePair     `json:"FS"`
	Periods   []periodScore `json:"PS"`
	SubScore  *sidePair     `json:"SS"`
}

type scorePart struct {
	Key   string     `json:"Key"`
	Value flexString `json:"Value"`
}

type sidePair struct {
	S1 flexString `json:"S1"`
	S2 flexString `json:"S2"`
}

type periodScore struct {
	Key   flexString `json:"Key"`
	Value sidePair   `json:"Value"`
}

type market struct {
	Group int     `json:"G"`
	Type  int     `json:"T"`
	Coef  float64 `json:"C"`
}

type winChanceSet struct {
	P1 *float64 `json:"P1"`
	P2 *float64 `json:"P2"`
	PX *float64 `json:"PX"`
}

// empty reports a WP object without any chance, e.g. "WP":{}.
func (w *winChanceSet) empty() bool {
	return w == nil || (w.P1 == nil && w.P2 == nil && w.PX == nil)
}

// flexString accepts a JSON string or number; the feed uses both for scores.
type flexString struct {
	Value string
	Set   bool
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = flexString{}
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := sonic.Unmarshal(data, &text); err != nil {
			return err
		}
		*f = flexString{Value: text, Set: true}
		return nil
	}

	number := string(data)
	if _, err := strconv.ParseFloat(number, 64); err != nil {
		return err
	}
	*f = flexString{Value: number, Set: true}
	return nil
}

func (f flexString) Or(fallback string) string {
	if !f.Set {
		return fallback
	}
	return f.Value
}
