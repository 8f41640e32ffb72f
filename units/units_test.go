package units

import (
	"errors"
	"image/color"
	"testing"

	"github.com/pthm-cable/army/config"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(config.Default().Units)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestNewTable(t *testing.T) {
	table := defaultTable(t)

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}

	tests := []struct {
		id     TypeID
		name   string
		color  color.RGBA
		radius float64
	}{
		{0, "MELEE", color.RGBA{0xff, 0x33, 0x33, 0xff}, 10},
		{1, "TANK", color.RGBA{0x00, 0x44, 0xff, 0xff}, 15},
		{2, "SUPPORT", color.RGBA{0xff, 0xdd, 0x00, 0xff}, 20},
	}
	for _, tt := range tests {
		p := table.Get(tt.id)
		if p.ID != tt.id {
			t.Errorf("Get(%d).ID = %d", tt.id, p.ID)
		}
		if p.Name != tt.name {
			t.Errorf("Get(%d).Name = %q, want %q", tt.id, p.Name, tt.name)
		}
		if p.Color != tt.color {
			t.Errorf("Get(%d).Color = %v, want %v", tt.id, p.Color, tt.color)
		}
		if p.Boids.PerceptionRadius != tt.radius {
			t.Errorf("Get(%d).PerceptionRadius = %v, want %v", tt.id, p.Boids.PerceptionRadius, tt.radius)
		}
	}

	if got := table.MaxPerceptionRadius(); got != 20 {
		t.Errorf("MaxPerceptionRadius() = %v, want 20", got)
	}
	if table.Valid(3) {
		t.Error("Valid(3) = true, want false")
	}
}

func TestNewTableBadColor(t *testing.T) {
	cfgs := config.Default().Units
	cfgs[1].Color = "blue"
	_, err := NewTable(cfgs)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("NewTable error = %v, want ErrInvalid", err)
	}
}

func TestProfilesIsCopy(t *testing.T) {
	table := defaultTable(t)
	ps := table.Profiles()
	ps[0].Boids.MaxSpeed = 99
	if table.Get(0).Boids.MaxSpeed == 99 {
		t.Error("modifying Profiles() result changed the table")
	}
}

func TestBoneScale(t *testing.T) {
	table := defaultTable(t)
	if got := table.Get(1).BoneScale("Torso"); got != [3]float64{1.8, 1.4, 1.8} {
		t.Errorf("TANK Torso = %v, want [1.8 1.4 1.8]", got)
	}
	if got := table.Get(1).BoneScale("Tail"); got != [3]float64{1, 1, 1} {
		t.Errorf("TANK Tail = %v, want identity", got)
	}
}

func TestPick(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		r    float64
		want TypeID
	}{
		{0, 0},
		{0.3, 0},
		{0.6, 0},
		{0.6000001, 1},
		{0.79, 1},
		{0.81, 2},
		{0.999999, 2},
	}
	for _, tt := range tests {
		if got := table.Pick(tt.r); got != tt.want {
			t.Errorf("Pick(%v) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestPickSkipsZeroRatio(t *testing.T) {
	cfgs := config.Default().Units
	cfgs[0].Ratio = 0
	cfgs[1].Ratio = 0.8
	table, err := NewTable(cfgs)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []float64{0, 0.5, 0.8, 0.9} {
		if got := table.Pick(r); got == 0 {
			t.Errorf("Pick(%v) = 0, want a type with nonzero ratio", r)
		}
	}
}
