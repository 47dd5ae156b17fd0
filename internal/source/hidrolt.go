package source

import (
	"encoding/json"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// hidroLTResponse is the hidro.lt power plant document. The newest water
// level entry comes first.
type hidroLTResponse struct {
	Levels *[]hidroLTLevel `json:"vandens_lygiai"`
}

type hidroLTLevel struct {
	Time  *string `json:"laikas"`
	Upper level   `json:"aukstutinis_vandens_lygis"`
	Lower level   `json:"zemutinis_vandens_lygis"`
}

// HidroLT normalizes hidro.lt power plant documents.
type HidroLT struct {
	loc *time.Location
}

// NewHidroLT creates the hidro.lt normalizer. Timestamps without an offset
// are read in loc (UTC when nil).
func NewHidroLT(loc *time.Location) *HidroLT {
	if loc == nil {
		loc = time.UTC
	}
	return &HidroLT{loc: loc}
}

func (h *HidroLT) Kind() domain.SourceKind { return domain.SourceHidroLT }

func (h *HidroLT) Normalize(raw []byte) (domain.Reading, bool, error) {
	var resp hidroLTResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Reading{}, false, malformed(h.Kind(), "decode: %v", err)
	}
	if resp.Levels == nil {
		return domain.Reading{}, false, malformed(h.Kind(), "missing vandens_lygiai")
	}
	if len(*resp.Levels) == 0 {
		return domain.Reading{}, false, nil
	}

	latest := (*resp.Levels)[0]
	if latest.Time == nil {
		return domain.Reading{}, false, malformed(h.Kind(), "latest entry has no laikas")
	}
	observedAt, err := parseTimestamp(*latest.Time, h.loc)
	if err != nil {
		return domain.Reading{}, false, malformed(h.Kind(), "laikas: %v", err)
	}

	return domain.Reading{
		ObservedAt:      observedAt,
		UpperBasinLevel: latest.Upper.v,
		LowerBasinLevel: latest.Lower.v,
	}, true, nil
}
