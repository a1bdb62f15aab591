package battery

import (
	"sync"
)

// Snapshot is the latest known reading of every tracked device. It lives as
// long as the process; updates merge per slot and nothing is ever removed.
type Snapshot struct {
	mu   *sync.RWMutex
	data Data
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		mu: &sync.RWMutex{},
	}
}

// Merge replaces every slot that is present in u. Absent slots keep their
// previous value. A present slot is replaced as a whole, fields are not
// merged within a slot.
func (s *Snapshot) Merge(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Buds != nil {
		s.data.Buds = u.Buds
	}
	if u.Headset != nil {
		s.data.Headset = u.Headset
	}
	if u.Mouse != nil {
		s.data.Mouse = u.Mouse
	}
}

// Current returns the live state. The readings are shared with the
// snapshot and must not be modified.
func (s *Snapshot) Current() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data
}

// Gauge is one of the four positions on the dashboard.
type Gauge int

const (
	GaugeBudsLeft Gauge = iota
	GaugeBudsRight
	GaugeHeadset
	GaugeMouse
)

// Gauges lists every gauge in drawing order.
var Gauges = []Gauge{GaugeBudsLeft, GaugeBudsRight, GaugeHeadset, GaugeMouse}

func (g Gauge) String() string {
	switch g {
	case GaugeBudsLeft:
		return "budsLeft"
	case GaugeBudsRight:
		return "budsRight"
	case GaugeHeadset:
		return "headset"
	case GaugeMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// Family returns the family of the device shown on the gauge.
func (g Gauge) Family() Family {
	if g == GaugeBudsLeft || g == GaugeBudsRight {
		return FamilyBuds
	}
	return FamilyPeripheral
}

// Level is the battery percentage and the status code shown on one gauge.
type Level struct {
	Percent *float64
	Status  *int
}

// Level extracts the values drawn on gauge g. Missing slots yield an empty
// Level.
func (d Data) Level(g Gauge) Level {
	switch g {
	case GaugeBudsLeft:
		if d.Buds != nil {
			return Level{Percent: d.Buds.LeftBattery, Status: d.Buds.LeftState}
		}
	case GaugeBudsRight:
		if d.Buds != nil {
			return Level{Percent: d.Buds.RightBattery, Status: d.Buds.RightState}
		}
	case GaugeHeadset:
		if d.Headset != nil {
			return Level{Percent: d.Headset.BatteryLevel, Status: d.Headset.Status}
		}
	case GaugeMouse:
		if d.Mouse != nil {
			return Level{Percent: d.Mouse.BatteryLevel, Status: d.Mouse.Status}
		}
	}
	return Level{}
}

// GaugeReport is the state of one gauge as served by the daemon API.
// StatusName is "-" when the device never reported a status.
type GaugeReport struct {
	Gauge      string   `json:"gauge"`
	Percent    *float64 `json:"percent,omitempty"`
	Status     *int     `json:"status,omitempty"`
	StatusName string   `json:"statusName"`
	Glyph      string   `json:"glyph,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// Report describes every gauge in drawing order.
func (d Data) Report() []GaugeReport {
	ret := make([]GaugeReport, 0, len(Gauges))
	for _, g := range Gauges {
		lvl := d.Level(g)
		r := GaugeReport{
			Gauge:      g.String(),
			Percent:    lvl.Percent,
			Status:     lvl.Status,
			StatusName: StatusName(g.Family(), lvl.Status),
		}
		if ds := Resolve(g.Family(), lvl.Status); ds != nil {
			r.Glyph = ds.Glyph
			r.Color = ds.Hex()
		}
		ret = append(ret, r)
	}
	return ret
}
