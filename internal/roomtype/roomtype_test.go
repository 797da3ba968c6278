package roomtype

import (
	"testing"
)

func TestDetect_MasterBedroomFilename(t *testing.T) {
	for _, name := range []string{"master_bedroom_1.jpg", "Master-Bedroom-02.JPG", "primary_bedroom.png", "master suite 3.jpeg"} {
		t.Run(name, func(t *testing.T) {
			res := Detect(name, nil)
			if res.RoomType != MasterBedroom {
				t.Errorf("RoomType = %q, want %q", res.RoomType, MasterBedroom)
			}
			if res.Confidence < 0.9 {
				t.Errorf("Confidence = %v, want >= 0.9", res.Confidence)
			}
		})
	}
}

func TestDetect_NoMatch(t *testing.T) {
	res := Detect("random_image.jpg", nil)
	if res.RoomType != Unknown {
		t.Errorf("RoomType = %q, want unknown", res.RoomType)
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", res.Confidence)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("Suggestions = %v, want none", res.Suggestions)
	}
	if len(res.DetectedFeatures) != 0 {
		t.Errorf("DetectedFeatures = %v, want none", res.DetectedFeatures)
	}
}

func TestDetect_EmptyInput(t *testing.T) {
	res := Detect("", &Metadata{Description: "   ", Tags: []string{""}})
	if res.RoomType != Unknown || res.Confidence != 0 {
		t.Errorf("Detect(\"\") = %+v, want unknown/0", res)
	}
	if res.Suggestions == nil || res.DetectedFeatures == nil {
		t.Error("expected empty, non-nil slices for JSON output")
	}
}

func TestDetect_FilenameOverridesFeatures(t *testing.T) {
	meta := &Metadata{
		Description: "a desk with a computer and monitor",
		Tags:        []string{"office chair"},
	}
	res := Detect("kitchen_01.jpg", meta)
	if res.RoomType != Kitchen {
		t.Errorf("RoomType = %q, want kitchen", res.RoomType)
	}
	if res.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}

	var sawOffice bool
	for _, s := range res.Suggestions {
		if s.RoomType == Office {
			sawOffice = true
		}
	}
	if !sawOffice {
		t.Errorf("expected office among suggestions, got %+v", res.Suggestions)
	}
}

func TestDetect_FeaturesOnly(t *testing.T) {
	res := Detect("IMG_4821.jpg", &Metadata{Description: "White toilet next to a glass shower"})
	if res.RoomType != Bathroom {
		t.Fatalf("RoomType = %q, want bathroom", res.RoomType)
	}
	if res.Confidence != maxFeatureConfidence {
		t.Errorf("Confidence = %v, want capped at %v", res.Confidence, maxFeatureConfidence)
	}
	want := map[string]bool{"toilet": true, "shower": true}
	if len(res.DetectedFeatures) != len(want) {
		t.Fatalf("DetectedFeatures = %v, want %v", res.DetectedFeatures, want)
	}
	for _, f := range res.DetectedFeatures {
		if !want[f] {
			t.Errorf("unexpected feature %q", f)
		}
	}
}

func TestDetect_WeakFilenameLosesToFeatures(t *testing.T) {
	// Outdoor scores 0.75 from "patio", below the override threshold.
	res := Detect("patio_view.jpg", &Metadata{Description: "couch, sofa and a coffee table"})
	if res.RoomType != LivingRoom {
		t.Errorf("RoomType = %q, want living_room", res.RoomType)
	}
	if len(res.Suggestions) != 3 {
		t.Fatalf("Suggestions = %+v, want 3", res.Suggestions)
	}
	if res.Suggestions[1].RoomType != Outdoor {
		t.Errorf("second suggestion = %q, want outdoor", res.Suggestions[1].RoomType)
	}
}

func TestDetect_SuggestionsTruncatedAndSorted(t *testing.T) {
	res := Detect("kitchen_dining_living_bath.jpg", nil)
	if len(res.Suggestions) != maxSuggestions {
		t.Fatalf("len(Suggestions) = %d, want %d", len(res.Suggestions), maxSuggestions)
	}
	for i := 1; i < len(res.Suggestions); i++ {
		if res.Suggestions[i].Confidence > res.Suggestions[i-1].Confidence {
			t.Errorf("suggestions not sorted: %+v", res.Suggestions)
		}
	}
	if res.RoomType != Kitchen {
		t.Errorf("RoomType = %q, want kitchen", res.RoomType)
	}
}

func TestFeatureConfidenceFormula(t *testing.T) {
	// desk (0.8) alone: 0.8 / 2 = 0.4
	res := detectFromFeatures("photo.jpg", &Metadata{Tags: []string{"desk"}})
	if res.RoomType != Office {
		t.Fatalf("RoomType = %q, want office", res.RoomType)
	}
	if res.Confidence != 0.4 {
		t.Errorf("Confidence = %v, want 0.4", res.Confidence)
	}
}

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Master_Bedroom-01.JPG", "master bedroom"},
		{"/uploads/abc/living-room_2024.png", "living room"},
		{"IMG_0001.jpeg", "img"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeFilename(tt.in); got != tt.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFallbackSuggestions(t *testing.T) {
	plain := FallbackSuggestions("IMG_1234.jpg")
	if len(plain) != 5 {
		t.Fatalf("len = %d, want 5", len(plain))
	}
	if plain[0].RoomType != LivingRoom || plain[2].RoomType != Kitchen {
		t.Errorf("unexpected default order: %+v", plain)
	}

	spacey := FallbackSuggestions("bonus_space.jpg")
	if len(spacey) != 5 {
		t.Fatalf("len = %d, want 5", len(spacey))
	}
	if spacey[1].RoomType != DiningRoom {
		t.Errorf("second suggestion = %q, want dining_room", spacey[1].RoomType)
	}
}

func TestResult_WithFallback(t *testing.T) {
	res := Detect("open_space_photo.jpg", nil).WithFallback("open_space_photo.jpg")
	if res.RoomType != Unknown || len(res.Fallback) != 5 || res.Fallback[0].RoomType != LivingRoom {
		t.Errorf("unknown result fallback = %+v", res.Fallback)
	}
	if res.Fallback[1].RoomType != DiningRoom {
		t.Errorf("second fallback = %q, want dining_room", res.Fallback[1].RoomType)
	}

	known := Detect("kitchen_01.jpg", nil).WithFallback("kitchen_01.jpg")
	if known.Fallback != nil {
		t.Errorf("known result fallback = %+v, want none", known.Fallback)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		want   RoomType
		wantOK bool
	}{
		{"Living Room", LivingRoom, true},
		{"master-bedroom", MasterBedroom, true},
		{"KITCHEN", Kitchen, true},
		{"unknown", Unknown, true},
		{"attic", Unknown, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Parse(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
