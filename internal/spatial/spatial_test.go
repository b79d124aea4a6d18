package spatial

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

var box = Bounds{South: 50, West: 4, North: 52, East: 6}

func TestContainsClosedBoundary(t *testing.T) {
	edges := []Point{
		{Lat: 50, Lon: 5},
		{Lat: 52, Lon: 5},
		{Lat: 51, Lon: 4},
		{Lat: 51, Lon: 6},
		{Lat: 50, Lon: 4},
		{Lat: 52, Lon: 6},
	}
	for _, p := range edges {
		if !box.Contains(p) {
			t.Errorf("edge point %+v should be inside", p)
		}
	}
	if box.Contains(Point{Lat: 52.0001, Lon: 5}) {
		t.Error("point north of the box should be outside")
	}
}

func TestBoundsValidate(t *testing.T) {
	if err := box.Validate(); err != nil {
		t.Errorf("valid box rejected: %v", err)
	}
	bad := []Bounds{
		{South: 53, West: 4, North: 52, East: 6},
		{South: 50, West: 7, North: 52, East: 6},
		{South: -91, West: 4, North: 52, East: 6},
		{South: 50, West: 4, North: 52, East: 181},
	}
	for _, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("expected %+v to be rejected", b)
		}
	}
}

func TestMatchesRoles(t *testing.T) {
	inside := &Point{Lat: 51, Lon: 5}
	outside := &Point{Lat: 40, Lon: 5}

	tests := []struct {
		name       string
		start, end *Point
		roles      Roles
		want       bool
	}{
		{"no roles", outside, outside, Roles{}, true},
		{"area start inside", inside, outside, Roles{Area: &box}, true},
		{"area end inside", outside, inside, Roles{Area: &box}, true},
		{"area neither", outside, outside, Roles{Area: &box}, false},
		{"area nil start end inside", nil, inside, Roles{Area: &box}, true},
		{"start inside", inside, outside, Roles{Start: &box}, true},
		{"start outside", outside, inside, Roles{Start: &box}, false},
		{"start missing", nil, inside, Roles{Start: &box}, false},
		{"end inside", outside, inside, Roles{End: &box}, true},
		{"end missing", inside, nil, Roles{End: &box}, false},
		{"start and end both required", inside, outside, Roles{Start: &box, End: &box}, false},
		{"start and end both satisfied", inside, inside, Roles{Start: &box, End: &box}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.start, tt.end, tt.roles); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterWithClearsOtherRoles(t *testing.T) {
	area := Area(box)
	north := Bounds{South: 51, West: 4, North: 52, East: 6}

	f, err := area.With(RoleStart, &north)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	roles := f.Roles()
	if roles.Area != nil || roles.End != nil {
		t.Errorf("setting start must clear area and end: %+v", roles)
	}
	if roles.Start == nil || *roles.Start != north {
		t.Errorf("start bounds not applied: %+v", roles.Start)
	}

	f, err = f.With(RoleArea, &box)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if r := f.Roles(); r.Start != nil || r.Area == nil {
		t.Errorf("setting area must clear start: %+v", r)
	}
}

func TestNewRequiresBounds(t *testing.T) {
	if _, err := New(RoleEnd, nil); !errors.Is(err, ErrNoBounds) {
		t.Errorf("expected ErrNoBounds, got %v", err)
	}
	f, err := New(RoleNone, nil)
	if err != nil || f.IsActive() {
		t.Errorf("none filter should be inactive, got %v %v", f, err)
	}
}

func TestFilterJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(EndArea(box))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, ok := f.Bounds()
	if f.Role() != RoleEnd || !ok || b != box {
		t.Errorf("round trip lost data: %s -> %+v", data, f)
	}

	if err := json.Unmarshal([]byte(`{"role":"area"}`), &f); err == nil {
		t.Error("area without bounds should fail")
	}
}

func TestParseRoleAliases(t *testing.T) {
	if r, _ := ParseRole("start_area"); r != RoleStart {
		t.Errorf("start_area -> %q", r)
	}
	if r, _ := ParseRole("end_area"); r != RoleEnd {
		t.Errorf("end_area -> %q", r)
	}
	if _, err := ParseRole("middle"); err == nil {
		t.Error("expected error for unknown role")
	}
}
