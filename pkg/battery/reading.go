package battery

import (
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
)

// Family identifies how a device reports its status code.
type Family int

const (
	// FamilyBuds is a pair of earbuds reporting left and right separately.
	FamilyBuds Family = iota
	// FamilyPeripheral is a headset or a mouse.
	FamilyPeripheral
)

func (f Family) String() string {
	switch f {
	case FamilyBuds:
		return "buds"
	case FamilyPeripheral:
		return "peripheral"
	default:
		return "unknown"
	}
}

// BudsStatus is the status code reported for a single earbud.
type BudsStatus int

const (
	BudsDisconnected BudsStatus = iota
	BudsWearing
	BudsIdle
	BudsInCase
	BudsInClosedCase
)

func (s BudsStatus) String() string {
	switch s {
	case BudsDisconnected:
		return "Disconnected"
	case BudsWearing:
		return "Wearing"
	case BudsIdle:
		return "Idle"
	case BudsInCase:
		return "InCase"
	case BudsInClosedCase:
		return "InClosedCase"
	default:
		return "Unknown"
	}
}

// PeripheralStatus is the status code reported by a headset or mouse.
type PeripheralStatus int

const (
	PeripheralUnknown PeripheralStatus = iota
	PeripheralCharging
	PeripheralCharged
	PeripheralDischarging
	PeripheralDisconnected
)

func (s PeripheralStatus) String() string {
	switch s {
	case PeripheralUnknown:
		return "Unknown"
	case PeripheralCharging:
		return "Charging"
	case PeripheralCharged:
		return "Charged"
	case PeripheralDischarging:
		return "Discharging"
	case PeripheralDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// BudsReading is the combined reading of both earbuds. Every field may be
// missing from the wire. Percentages may be fractional, status codes may not.
type BudsReading struct {
	LeftBattery  *float64 `json:"leftBattery,omitempty"`
	RightBattery *float64 `json:"rightBattery,omitempty"`
	LeftState    *int     `json:"leftState,omitempty"`
	RightState   *int     `json:"rightState,omitempty"`
}

// PeripheralReading is the reading of a headset or a mouse.
// ExtraBatteryLevel is kept for peers that report a second cell; it is not
// rendered.
type PeripheralReading struct {
	BatteryLevel      *float64 `json:"batteryLevel,omitempty"`
	ExtraBatteryLevel *float64 `json:"extraBatteryLevel,omitempty"`
	Status            *int     `json:"status,omitempty"`
}

// Data holds the latest reading of every tracked device. A nil slot means
// nothing has been observed for that device yet.
type Data struct {
	Buds    *BudsReading       `json:"buds,omitempty"`
	Headset *PeripheralReading `json:"headset,omitempty"`
	Mouse   *PeripheralReading `json:"mouse,omitempty"`
}

// Update is a partial Data. Only non-nil slots are applied by a merge.
type Update = Data

// DecodeUpdate parses a JSON-encoded partial reading.
func DecodeUpdate(payload []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return Update{}, pkgerrors.Wrap(err, "failed to decode battery update")
	}
	return u, nil
}
