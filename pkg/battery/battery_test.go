package battery

import (
	"reflect"
	"testing"

	"github.com/extra-connectors/tpbridge/pkg/utils/ptr"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		code   *int
		want   *DisplayState
	}{
		{name: "buds disconnected", family: FamilyBuds, code: ptr.To(0), want: &DisplayState{Glyph: "●", Color: ColorRed}},
		{name: "buds wearing", family: FamilyBuds, code: ptr.To(1), want: &DisplayState{Glyph: "●", Color: ColorYellow}},
		{name: "buds idle", family: FamilyBuds, code: ptr.To(2), want: &DisplayState{Glyph: "●", Color: ColorOrange}},
		{name: "buds in case", family: FamilyBuds, code: ptr.To(3), want: &DisplayState{Glyph: "●", Color: ColorGreen}},
		{name: "buds in closed case", family: FamilyBuds, code: ptr.To(4), want: &DisplayState{Glyph: "●", Color: ColorGreen}},
		{name: "peripheral unknown", family: FamilyPeripheral, code: ptr.To(0), want: &DisplayState{Glyph: "?", Color: ColorRed}},
		{name: "peripheral charging", family: FamilyPeripheral, code: ptr.To(1), want: &DisplayState{Glyph: "●", Color: ColorGreen}},
		{name: "peripheral charged", family: FamilyPeripheral, code: ptr.To(2), want: &DisplayState{Glyph: "■", Color: ColorGreen}},
		{name: "peripheral discharging", family: FamilyPeripheral, code: ptr.To(3), want: &DisplayState{Glyph: "●", Color: ColorYellow}},
		{name: "peripheral disconnected", family: FamilyPeripheral, code: ptr.To(4), want: &DisplayState{Glyph: "●", Color: ColorRed}},
		{name: "absent", family: FamilyBuds, code: nil, want: nil},
		{name: "negative", family: FamilyBuds, code: ptr.To(-1), want: nil},
		{name: "buds out of range", family: FamilyBuds, code: ptr.To(5), want: nil},
		{name: "peripheral out of range", family: FamilyPeripheral, code: ptr.To(42), want: nil},
		{name: "unknown family", family: Family(7), code: ptr.To(1), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.family, tt.code); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayStateHex(t *testing.T) {
	s := Resolve(FamilyBuds, ptr.To(int(BudsInCase)))
	if s == nil {
		t.Fatalf("expected a display state")
	}
	if got := s.Hex(); got != "#23fd71" {
		t.Errorf("Hex() = %s, want #23fd71", got)
	}
}

func TestSnapshotMergeOrderIndependent(t *testing.T) {
	a := &PeripheralReading{BatteryLevel: ptr.To(50.0), Status: ptr.To(1)}
	b := &PeripheralReading{BatteryLevel: ptr.To(20.0), Status: ptr.To(3)}

	s1 := NewSnapshot()
	s1.Merge(Update{Headset: a})
	s1.Merge(Update{Mouse: b})

	s2 := NewSnapshot()
	s2.Merge(Update{Mouse: b})
	s2.Merge(Update{Headset: a})

	if !reflect.DeepEqual(s1.Current(), s2.Current()) {
		t.Fatalf("merge order changed the result: %+v vs %+v", s1.Current(), s2.Current())
	}
}

func TestSnapshotMergeReplacesSlot(t *testing.T) {
	buds := &BudsReading{LeftBattery: ptr.To(90.0)}
	mouse := &PeripheralReading{BatteryLevel: ptr.To(10.0)}
	a := &PeripheralReading{BatteryLevel: ptr.To(50.0), ExtraBatteryLevel: ptr.To(40.0)}
	c := &PeripheralReading{Status: ptr.To(2)}

	s := NewSnapshot()
	s.Merge(Update{Buds: buds, Mouse: mouse})
	s.Merge(Update{Headset: a})
	s.Merge(Update{Headset: c})

	got := s.Current()
	if got.Headset != c {
		t.Fatalf("expected headset to be replaced, got %+v", got.Headset)
	}
	if got.Headset.BatteryLevel != nil {
		t.Errorf("slot replacement must not keep fields of the previous reading")
	}
	if got.Buds != buds || got.Mouse != mouse {
		t.Errorf("other slots changed: %+v", got)
	}
}

func TestSnapshotEmptyMergeKeepsState(t *testing.T) {
	s := NewSnapshot()
	s.Merge(Update{Mouse: &PeripheralReading{BatteryLevel: ptr.To(10.0)}})
	before := s.Current()
	s.Merge(Update{})
	if !reflect.DeepEqual(before, s.Current()) {
		t.Fatalf("empty update changed the snapshot")
	}
}

func TestDecodeUpdate(t *testing.T) {
	u, err := DecodeUpdate([]byte(`{"buds":{"leftBattery":80,"leftState":3}}`))
	if err != nil {
		t.Fatalf("DecodeUpdate returned error: %v", err)
	}
	if u.Headset != nil || u.Mouse != nil {
		t.Errorf("expected only buds to be present, got %+v", u)
	}
	if u.Buds == nil || *u.Buds.LeftBattery != 80 || *u.Buds.LeftState != 3 {
		t.Errorf("unexpected buds reading: %+v", u.Buds)
	}
	if u.Buds.RightBattery != nil || u.Buds.RightState != nil {
		t.Errorf("right bud must stay absent")
	}

	if _, err := DecodeUpdate([]byte(`{"buds":`)); err == nil {
		t.Errorf("expected error for truncated payload")
	}

	u, err = DecodeUpdate([]byte(`{"mouse":{"batteryLevel":42.75}}`))
	if err != nil {
		t.Fatalf("DecodeUpdate returned error: %v", err)
	}
	if u.Mouse == nil || *u.Mouse.BatteryLevel != 42.75 {
		t.Errorf("fractional level not kept: %+v", u.Mouse)
	}
}

func TestDataLevel(t *testing.T) {
	d := Data{
		Buds:  &BudsReading{LeftBattery: ptr.To(80.0), LeftState: ptr.To(3), RightBattery: ptr.To(70.0)},
		Mouse: &PeripheralReading{BatteryLevel: ptr.To(5.0), Status: ptr.To(3)},
	}

	if l := d.Level(GaugeBudsLeft); *l.Percent != 80 || *l.Status != 3 {
		t.Errorf("unexpected left bud level: %+v", l)
	}
	if l := d.Level(GaugeBudsRight); *l.Percent != 70 || l.Status != nil {
		t.Errorf("unexpected right bud level: %+v", l)
	}
	if l := d.Level(GaugeHeadset); l.Percent != nil || l.Status != nil {
		t.Errorf("missing headset must yield an empty level: %+v", l)
	}
	if l := d.Level(GaugeMouse); *l.Percent != 5 {
		t.Errorf("unexpected mouse level: %+v", l)
	}
	if GaugeHeadset.Family() != FamilyPeripheral || GaugeBudsRight.Family() != FamilyBuds {
		t.Errorf("unexpected gauge families")
	}
}

func TestDataReport(t *testing.T) {
	d := Data{
		Buds:  &BudsReading{LeftBattery: ptr.To(80.0), LeftState: ptr.To(int(BudsInCase))},
		Mouse: &PeripheralReading{BatteryLevel: ptr.To(15.0), Status: ptr.To(9)},
	}
	got := d.Report()
	if len(got) != 4 {
		t.Fatalf("expected 4 gauges, got %d", len(got))
	}

	left := got[0]
	if left.Gauge != "budsLeft" || *left.Percent != 80 || left.StatusName != "InCase" || left.Color != "#23fd71" || left.Glyph != "●" {
		t.Errorf("unexpected left bud report %+v", left)
	}
	if right := got[1]; right.Percent != nil || right.StatusName != "-" || right.Glyph != "" {
		t.Errorf("unexpected right bud report %+v", right)
	}
	if mouse := got[3]; mouse.Gauge != "mouse" || *mouse.Percent != 15 || mouse.Glyph != "" || mouse.Color != "" {
		t.Errorf("out of range status must not resolve, got %+v", mouse)
	}
}
