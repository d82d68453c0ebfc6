package api

import (
	"fmt"
	"sort"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/pkg/types"
)

// Advice is one human-readable note about a location's air quality.
type Advice struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is an optional number the note refers to.
	Value *float64 `json:"value,omitempty"`
}

var adviceRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// levelAdvice is the public guidance for each CAI level, indexed by level.
var levelAdvice = [...]Advice{
	{Key: "level_" + compute.LevelGood.String(), Level: "ok", Title: "Good air",
		Detail: "Air quality is good. No restrictions on outdoor activity."},
	{Key: "level_" + compute.LevelFair.String(), Level: "info", Title: "Fair air",
		Detail: "Air quality is acceptable. Unusually sensitive people should watch for symptoms during long outdoor exertion."},
	{Key: "level_" + compute.LevelNorm.String(), Level: "warning", Title: "Unhealthy for some",
		Detail: "Sensitive groups (children, the elderly, people with heart or lung disease) should reduce prolonged outdoor exertion."},
	{Key: "level_" + compute.LevelPoor.String(), Level: "critical", Title: "Unhealthy air",
		Detail: "Everyone should avoid outdoor exertion. Sensitive groups should stay indoors and keep windows closed."},
}

// computeAdvice derives notes from a snapshot, critical first.
func computeAdvice(snap *types.Snapshot) []Advice {
	if snap.State == compute.StateUnknown {
		detail := "Not enough hourly measurements to compute the index yet."
		if snap.ErrorMessage != "" {
			detail = fmt.Sprintf("The index could not be computed: %s.", snap.ErrorMessage)
		}
		return []Advice{{Key: "no_data", Level: "info", Title: "No index", Detail: detail}}
	}

	out := make([]Advice, 0, 4)
	if snap.Level >= 0 && snap.Level < len(levelAdvice) {
		a := levelAdvice[snap.Level]
		cai := snap.CAI
		a.Value = &cai
		out = append(out, a)
	}

	if snap.BadPollutants >= 2 {
		n := float64(snap.BadPollutants)
		out = append(out, Advice{
			Key:   "multiple_pollutants",
			Level: "warning",
			Title: fmt.Sprintf("%d pollutants elevated", snap.BadPollutants),
			Detail: "More than one pollutant is at an unhealthy level, so the index includes " +
				"a penalty on top of the worst sub-index.",
			Value: &n,
		})
	}

	for _, si := range snap.SubIndices {
		if si.Level < 2 || si.Pollutant == snap.Worst {
			continue
		}
		score := si.Score
		out = append(out, Advice{
			Key:    "elevated_" + si.Pollutant,
			Level:  "info",
			Title:  si.Pollutant + " elevated",
			Detail: fmt.Sprintf("%s sub-index is %.0f.", si.Pollutant, si.Score),
			Value:  &score,
		})
	}

	if snap.Forecast {
		out = append(out, Advice{
			Key:    "forecast",
			Level:  "info",
			Title:  "Forecast",
			Detail: "This value is derived from forecast data rather than measurements.",
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return adviceRank[out[i].Level] < adviceRank[out[j].Level]
	})
	return out
}
