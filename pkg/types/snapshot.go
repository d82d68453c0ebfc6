package types

import "time"

// Snapshot is the CAI evaluation for one location at one hour.
type Snapshot struct {
	LocationID    string     `json:"location_id"`
	Timestamp     time.Time  `json:"timestamp"`
	State         string     `json:"state"` // good | fair | norm | poor | unknown
	CAI           float64    `json:"cai"`
	Level         int        `json:"level"`
	BadPollutants int        `json:"bad_pollutants"`
	Worst         string     `json:"worst,omitempty"`
	SubIndices    []SubIndex `json:"sub_indices"`
	Forecast      bool       `json:"forecast"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// SubIndex is one pollutant's contribution to a Snapshot.
type SubIndex struct {
	Pollutant     string  `json:"pollutant"`
	Concentration float64 `json:"concentration"`
	Score         float64 `json:"score"`
	Level         int     `json:"level"`
}

// SubIndexFor returns the sub-index for pollutant, if present.
func (s *Snapshot) SubIndexFor(pollutant string) (SubIndex, bool) {
	for _, si := range s.SubIndices {
		if si.Pollutant == pollutant {
			return si, true
		}
	}
	return SubIndex{}, false
}
