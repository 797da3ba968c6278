// Package roomtype guesses the room category of a listing photo from its
// filename and optional free-text metadata.
//
// Two detectors run independently. The filename detector matches an ordered
// table of patterns against the normalized filename stem. The feature
// detector scans filename, description and tags for weighted structural
// keywords ("toilet", "stove", "desk"). Their suggestions are merged, and a
// confident filename match always wins.
//
// Detection never fails: when nothing matches the result is Unknown with
// zero confidence, and callers may offer FallbackSuggestions instead.
package roomtype

import "strings"

// RoomType is a known room category.
type RoomType string

const (
	LivingRoom    RoomType = "living_room"
	Bedroom       RoomType = "bedroom"
	MasterBedroom RoomType = "master_bedroom"
	Kitchen       RoomType = "kitchen"
	Bathroom      RoomType = "bathroom"
	DiningRoom    RoomType = "dining_room"
	Office        RoomType = "office"
	FamilyRoom    RoomType = "family_room"
	Basement      RoomType = "basement"
	Outdoor       RoomType = "outdoor"
	Entryway      RoomType = "entryway"
	LaundryRoom   RoomType = "laundry_room"
	Garage        RoomType = "garage"
	Unknown       RoomType = "unknown"
)

var allRoomTypes = []RoomType{
	LivingRoom, Bedroom, MasterBedroom, Kitchen, Bathroom, DiningRoom,
	Office, FamilyRoom, Basement, Outdoor, Entryway, LaundryRoom, Garage,
}

var displayNames = map[RoomType]string{
	LivingRoom:    "Living Room",
	Bedroom:       "Bedroom",
	MasterBedroom: "Master Bedroom",
	Kitchen:       "Kitchen",
	Bathroom:      "Bathroom",
	DiningRoom:    "Dining Room",
	Office:        "Home Office",
	FamilyRoom:    "Family Room",
	Basement:      "Basement",
	Outdoor:       "Outdoor Space",
	Entryway:      "Entryway",
	LaundryRoom:   "Laundry Room",
	Garage:        "Garage",
	Unknown:       "Unknown",
}

// All returns every known room type except Unknown, in display order.
func All() []RoomType {
	out := make([]RoomType, len(allRoomTypes))
	copy(out, allRoomTypes)
	return out
}

// Valid reports whether rt is a known room type. Unknown is valid: it is the
// sentinel stored on images nobody has classified yet.
func (rt RoomType) Valid() bool {
	if rt == Unknown {
		return true
	}
	for _, known := range allRoomTypes {
		if rt == known {
			return true
		}
	}
	return false
}

// DisplayName returns a human-readable label, e.g. "Master Bedroom".
func (rt RoomType) DisplayName() string {
	if name, ok := displayNames[rt]; ok {
		return name
	}
	return strings.ReplaceAll(string(rt), "_", " ")
}

// Parse converts user input ("Living Room", "living-room", "LIVING_ROOM")
// into a RoomType. The second return is false for unrecognized input.
func Parse(s string) (RoomType, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	rt := RoomType(norm)
	if rt.Valid() {
		return rt, true
	}
	return Unknown, false
}

// Metadata is optional free text describing a photo.
type Metadata struct {
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (m *Metadata) empty() bool {
	if m == nil {
		return true
	}
	if strings.TrimSpace(m.Description) != "" {
		return false
	}
	for _, t := range m.Tags {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

// Suggestion is one candidate room type with the evidence behind it.
type Suggestion struct {
	RoomType   RoomType `json:"roomType"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Result is the outcome of Detect. It is not persisted.
type Result struct {
	RoomType         RoomType     `json:"roomType"`
	Confidence       float64      `json:"confidence"`
	Suggestions      []Suggestion `json:"suggestions"`
	DetectedFeatures []string     `json:"detectedFeatures"`
	// Fallback is set by WithFallback for photos Detect could not place.
	Fallback []Suggestion `json:"fallback,omitempty"`
}

func unknownResult() Result {
	return Result{
		RoomType:         Unknown,
		Confidence:       0,
		Suggestions:      []Suggestion{},
		DetectedFeatures: []string{},
	}
}
