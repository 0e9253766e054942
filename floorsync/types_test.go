package floorsync

import "testing"

func TestStationAliases_Resolve(t *testing.T) {
	aliases := StationAliases{"ST-40": "Z3", "ST-50": ""}

	cases := []struct {
		name     string
		event    FloorEvent
		expected string
	}{
		{"explicit zone wins over alias", FloorEvent{ZoneCode: "Z1", Station: "ST-40"}, "Z1"},
		{"alias maps the station", FloorEvent{Station: "ST-40"}, "Z3"},
		{"unknown station passes through", FloorEvent{Station: "ST-99"}, "ST-99"},
		{"empty alias value falls back to station", FloorEvent{Station: "ST-50"}, "ST-50"},
	}
	for _, tc := range cases {
		if got := aliases.Resolve(tc.event); got != tc.expected {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.expected, got)
		}
	}
}

func TestStationAliases_Resolve_NilMap(t *testing.T) {
	var aliases StationAliases
	if got := aliases.Resolve(FloorEvent{Station: "ST-10"}); got != "ST-10" {
		t.Fatalf("nil alias map should pass the station through, got %q", got)
	}
}

func TestDecodeAliases_BadInputFallsBackToEmpty(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"not json", []byte("station=zone")},
		{"wrong shape", []byte(`["ST-40"]`)},
	}
	for _, tc := range cases {
		aliases := DecodeAliases(tc.raw)
		if aliases == nil {
			t.Fatalf("%s: expected empty map, got nil", tc.name)
		}
		if len(aliases) != 0 {
			t.Fatalf("%s: expected empty map, got %v", tc.name, aliases)
		}
	}

	aliases := DecodeAliases([]byte(`{"ST-40":"Z3"}`))
	if aliases["ST-40"] != "Z3" {
		t.Fatalf("expected decoded alias ST-40 -> Z3, got %v", aliases)
	}
}

func TestEncodeAliases_NilBecomesEmptyObject(t *testing.T) {
	if got := string(EncodeAliases(nil)); got != "{}" {
		t.Fatalf("expected {}, got %s", got)
	}
	round := DecodeAliases(EncodeAliases(StationAliases{"ST-40": "Z3"}))
	if round["ST-40"] != "Z3" {
		t.Fatalf("expected alias to survive encode/decode, got %v", round)
	}
}
