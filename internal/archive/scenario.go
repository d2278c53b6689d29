package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sot/kalman-watch/model"
)

// ScenarioSummary reports what a scenario load brought in. Mainly
// useful for logging.
type ScenarioSummary struct {
	ObsIDs  []int
	StarIDs []int64
	Samples int
}

// internal JSON shapes - kept unexported so the format can evolve.
type scenarioJSON struct {
	Dwells []dwellJSON `json:"dwells"`
	Stars  []starJSON  `json:"stars"`
}

type dwellJSON struct {
	ObsID       int          `json:"obsid"`
	Start       time.Time    `json:"start"`
	Stop        time.Time    `json:"stop"`
	ManeuverEnd time.Time    `json:"maneuver_end"`
	Catalog     []entryJSON  `json:"catalog"`
	Samples     []sampleJSON `json:"samples"`
	MSEnable    []flagJSON   `json:"ms_enable,omitempty"`
}

type entryJSON struct {
	Slot   int    `json:"slot"`
	StarID int64  `json:"star_id"`
	Type   string `json:"type"`
}

type sampleJSON struct {
	Time            time.Time  `json:"time"`
	KalmanStarCount int        `json:"kalman_star_count"`
	Attitude        [4]float64 `json:"attitude"`
	Slots           []slotJSON `json:"slots"`
}

type slotJSON struct {
	Slot     int     `json:"slot"`
	FidLight bool    `json:"fid_light,omitempty"`
	Tracking bool    `json:"tracking"`
	IRBad    bool    `json:"ir_bad,omitempty"`
	SPBad    bool    `json:"sp_bad,omitempty"`
	DPBad    bool    `json:"dp_bad,omitempty"`
	MSBad    bool    `json:"ms_bad,omitempty"`
	Yag      float64 `json:"yag"`
	Zag      float64 `json:"zag"`
}

type starJSON struct {
	ID  int64   `json:"id"`
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

type flagJSON struct {
	Time    time.Time `json:"time"`
	Enabled bool      `json:"enabled"`
}

// LoadScenario reads a JSON dwell scenario from r and populates the
// archive with dwells, catalogs, telemetry, and star coordinates. It
// fails on JSON or structural errors; duplicate obsids surface through
// the same AddDwell error the direct path produces.
func LoadScenario(a *Archive, r io.Reader) (*ScenarioSummary, error) {
	if a == nil {
		return nil, fmt.Errorf("LoadScenario: archive is nil")
	}

	var payload scenarioJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	summary := &ScenarioSummary{}

	for _, s := range payload.Stars {
		a.AddStar(model.Star{ID: s.ID, RA: s.RA, Dec: s.Dec})
		summary.StarIDs = append(summary.StarIDs, s.ID)
	}

	for _, d := range payload.Dwells {
		dwell := model.Dwell{
			ObsID:       d.ObsID,
			Start:       d.Start,
			Stop:        d.Stop,
			ManeuverEnd: d.ManeuverEnd,
		}
		if dwell.ManeuverEnd.IsZero() {
			dwell.ManeuverEnd = dwell.Start
		}
		if err := a.AddDwell(dwell); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}

		var entries []model.GuideCatalogEntry
		for _, e := range d.Catalog {
			entries = append(entries, model.GuideCatalogEntry{
				Slot:   e.Slot,
				StarID: e.StarID,
				Type:   model.EntryType(e.Type),
			})
		}
		a.SetGuideCatalog(d.ObsID, entries)

		telem := &DwellTelemetry{}
		for _, raw := range d.Samples {
			sample, err := decodeSample(raw)
			if err != nil {
				return nil, fmt.Errorf("LoadScenario: obsid %d: %w", d.ObsID, err)
			}
			telem.Samples = append(telem.Samples, sample)
		}
		for _, f := range d.MSEnable {
			telem.MSEnable = append(telem.MSEnable, model.FlagSample{Time: f.Time, Enabled: f.Enabled})
		}
		a.SetTelemetry(d.ObsID, telem)

		summary.ObsIDs = append(summary.ObsIDs, d.ObsID)
		summary.Samples += len(telem.Samples)
	}

	return summary, nil
}

func decodeSample(raw sampleJSON) (model.TelemetrySample, error) {
	sample := model.TelemetrySample{
		Time:            raw.Time,
		KalmanStarCount: raw.KalmanStarCount,
		Attitude: model.Quaternion{
			Q1: raw.Attitude[0],
			Q2: raw.Attitude[1],
			Q3: raw.Attitude[2],
			Q4: raw.Attitude[3],
		},
	}
	for _, sl := range raw.Slots {
		if sl.Slot < 0 || sl.Slot >= model.NumSlots {
			return model.TelemetrySample{}, fmt.Errorf("sample at %s: invalid slot %d", raw.Time.Format(time.RFC3339), sl.Slot)
		}
		sample.Slots[sl.Slot] = model.SlotSample{
			FidLight:          sl.FidLight,
			Tracking:          sl.Tracking,
			IonizingRadiation: flagState(sl.IRBad),
			SaturatedPixel:    flagState(sl.SPBad),
			DefectivePixel:    flagState(sl.DPBad),
			MultipleStar:      flagState(sl.MSBad),
			Yag:               sl.Yag,
			Zag:               sl.Zag,
		}
	}
	return sample, nil
}

func flagState(bad bool) model.FlagState {
	if bad {
		return model.FlagBad
	}
	return model.FlagOK
}
