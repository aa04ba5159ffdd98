package model

// Magazine describes one calibrated reservoir slot. MinDist is the
// sensor distance when the magazine is full, MaxDist when it is empty.
type Magazine struct {
	ID        int     `json:"id" gorm:"primaryKey"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	SensorKey string  `json:"sensorKey"`
	Color     string  `json:"color"`
	MinDist   float64 `json:"minDist"`
	MaxDist   float64 `json:"maxDist"`
}

// FillPercent converts a raw distance reading into a 0-100 fill level
// using the calibration bounds. Readings outside the bounds clamp.
func (m Magazine) FillPercent(dist float64) float64 {
	if m.MaxDist <= m.MinDist {
		return 0
	}
	pct := (m.MaxDist - dist) / (m.MaxDist - m.MinDist) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
