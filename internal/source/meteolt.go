package source

import (
	"encoding/json"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// meteoLTResponse is the meteo.lt hydrological station observations document.
// Observations are in chronological order, so the newest is last.
type meteoLTResponse struct {
	Observations *[]meteoLTObservation `json:"observations"`
}

type meteoLTObservation struct {
	Time       *string `json:"observationTimeUtc"`
	WaterLevel level   `json:"waterLevel"`
}

// MeteoLT normalizes meteo.lt station observations. The station water level
// is recorded as the upper basin level; stations report no tail level.
type MeteoLT struct{}

// NewMeteoLT creates the meteo.lt normalizer.
func NewMeteoLT() *MeteoLT { return &MeteoLT{} }

func (m *MeteoLT) Kind() domain.SourceKind { return domain.SourceMeteoLT }

func (m *MeteoLT) Normalize(raw []byte) (domain.Reading, bool, error) {
	var resp meteoLTResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Reading{}, false, malformed(m.Kind(), "decode: %v", err)
	}
	if resp.Observations == nil {
		return domain.Reading{}, false, malformed(m.Kind(), "missing observations")
	}
	obs := *resp.Observations
	if len(obs) == 0 {
		return domain.Reading{}, false, nil
	}

	latest := obs[len(obs)-1]
	if latest.Time == nil {
		return domain.Reading{}, false, malformed(m.Kind(), "latest observation has no observationTimeUtc")
	}
	observedAt, err := parseTimestamp(*latest.Time, time.UTC)
	if err != nil {
		return domain.Reading{}, false, malformed(m.Kind(), "observationTimeUtc: %v", err)
	}

	return domain.Reading{
		ObservedAt:      observedAt,
		UpperBasinLevel: latest.WaterLevel.v,
	}, true, nil
}
