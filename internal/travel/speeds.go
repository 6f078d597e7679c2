package travel

import "github.com/JamesPrial/timeline-core/pkg/timeline"

type speedKey struct {
	subject string
	mode    string
}

// SpeedTable resolves effective speeds from a manuscript's profiles without
// touching storage
type SpeedTable struct {
	fallback float64
	speeds   map[speedKey]float64
}

// NewSpeedTable builds a table. fallback is the default subject's speed.
func NewSpeedTable(fallback float64, profiles []timeline.TravelSpeedProfile) *SpeedTable {
	t := &SpeedTable{fallback: fallback, speeds: make(map[speedKey]float64, len(profiles))}
	for _, p := range profiles {
		t.speeds[speedKey{subject: p.Subject, mode: normalizeMode(p.TransportMode)}] = p.Speed
	}
	return t
}

// Speed applies the precedence character+mode, character, default+mode, default
func (t *SpeedTable) Speed(characterID, mode string) float64 {
	mode = normalizeMode(mode)
	candidates := []speedKey{
		{subject: characterID, mode: mode},
		{subject: characterID},
		{subject: timeline.DefaultSubject, mode: mode},
		{subject: timeline.DefaultSubject},
	}
	for _, key := range candidates {
		if key.subject == "" {
			continue
		}
		if speed, ok := t.speeds[key]; ok {
			return speed
		}
	}
	return t.fallback
}
