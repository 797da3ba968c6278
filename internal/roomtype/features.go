package roomtype

import (
	"regexp"
	"sort"
	"strings"
)

// maxFeatureConfidence caps feature-based scores so keyword evidence alone
// never reaches the filename override threshold.
const maxFeatureConfidence = 0.8

type featureWeight struct {
	roomType RoomType
	weight   float64
}

type structuralFeature struct {
	name    string
	re      *regexp.Regexp
	weights []featureWeight
}

func feature(name string, weights ...featureWeight) structuralFeature {
	return structuralFeature{
		name:    name,
		re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `(s|es)?\b`),
		weights: weights,
	}
}

func w(rt RoomType, weight float64) featureWeight {
	return featureWeight{roomType: rt, weight: weight}
}

var structuralFeatures = []structuralFeature{
	feature("toilet", w(Bathroom, 0.95)),
	feature("shower", w(Bathroom, 0.9)),
	feature("bathtub", w(Bathroom, 0.9)),
	feature("tub", w(Bathroom, 0.7)),
	feature("vanity", w(Bathroom, 0.6), w(MasterBedroom, 0.2)),
	feature("sink", w(Bathroom, 0.5), w(Kitchen, 0.5), w(LaundryRoom, 0.3)),
	feature("mirror", w(Bathroom, 0.4), w(Entryway, 0.2)),
	feature("stove", w(Kitchen, 0.9)),
	feature("oven", w(Kitchen, 0.9)),
	feature("refrigerator", w(Kitchen, 0.9)),
	feature("fridge", w(Kitchen, 0.9)),
	feature("dishwasher", w(Kitchen, 0.9)),
	feature("cabinet", w(Kitchen, 0.5), w(Bathroom, 0.3), w(LaundryRoom, 0.2)),
	feature("countertop", w(Kitchen, 0.7), w(Bathroom, 0.3)),
	feature("island", w(Kitchen, 0.7)),
	feature("microwave", w(Kitchen, 0.8)),
	feature("bed", w(Bedroom, 0.8), w(MasterBedroom, 0.6)),
	feature("nightstand", w(Bedroom, 0.7), w(MasterBedroom, 0.5)),
	feature("dresser", w(Bedroom, 0.6), w(MasterBedroom, 0.5)),
	feature("closet", w(Bedroom, 0.5), w(MasterBedroom, 0.4), w(Entryway, 0.2)),
	feature("walk-in closet", w(MasterBedroom, 0.8)),
	feature("crib", w(Bedroom, 0.8)),
	feature("sofa", w(LivingRoom, 0.8), w(FamilyRoom, 0.6)),
	feature("couch", w(LivingRoom, 0.8), w(FamilyRoom, 0.6)),
	feature("sectional", w(FamilyRoom, 0.7), w(LivingRoom, 0.6)),
	feature("fireplace", w(LivingRoom, 0.7), w(FamilyRoom, 0.5)),
	feature("coffee table", w(LivingRoom, 0.7)),
	feature("tv", w(FamilyRoom, 0.6), w(LivingRoom, 0.5), w(Basement, 0.2)),
	feature("television", w(FamilyRoom, 0.6), w(LivingRoom, 0.5)),
	feature("dining table", w(DiningRoom, 0.9)),
	feature("chandelier", w(DiningRoom, 0.6), w(Entryway, 0.3)),
	feature("buffet", w(DiningRoom, 0.6)),
	feature("table", w(DiningRoom, 0.5), w(Kitchen, 0.2)),
	feature("chairs", w(DiningRoom, 0.4), w(Office, 0.2)),
	feature("desk", w(Office, 0.8)),
	feature("computer", w(Office, 0.7)),
	feature("monitor", w(Office, 0.6)),
	feature("bookshelf", w(Office, 0.6), w(LivingRoom, 0.2)),
	feature("office chair", w(Office, 0.8)),
	feature("washer", w(LaundryRoom, 0.9)),
	feature("dryer", w(LaundryRoom, 0.9)),
	feature("furnace", w(Basement, 0.8)),
	feature("water heater", w(Basement, 0.7), w(Garage, 0.3)),
	feature("concrete floor", w(Basement, 0.6), w(Garage, 0.6)),
	feature("car", w(Garage, 0.8)),
	feature("garage door", w(Garage, 0.9)),
	feature("workbench", w(Garage, 0.7), w(Basement, 0.3)),
	feature("grass", w(Outdoor, 0.8)),
	feature("lawn", w(Outdoor, 0.8)),
	feature("pool", w(Outdoor, 0.8)),
	feature("tree", w(Outdoor, 0.6)),
	feature("grill", w(Outdoor, 0.7)),
	feature("front door", w(Entryway, 0.8)),
	feature("coat rack", w(Entryway, 0.7)),
	feature("staircase", w(Entryway, 0.5), w(Basement, 0.2)),
}

// detectFromFeatures scores room types by the structural keywords found in
// the combined filename, description and tags.
func detectFromFeatures(filename string, meta *Metadata) Result {
	if meta.empty() {
		return unknownResult()
	}

	parts := []string{NormalizeFilename(filename), meta.Description}
	parts = append(parts, meta.Tags...)
	text := strings.ToLower(strings.Join(parts, " "))

	scores := make(map[RoomType]float64)
	evidence := make(map[RoomType][]string)
	var found []string

	for _, f := range structuralFeatures {
		if !f.re.MatchString(text) {
			continue
		}
		found = append(found, f.name)
		for _, fw := range f.weights {
			scores[fw.roomType] += fw.weight
			evidence[fw.roomType] = append(evidence[fw.roomType], f.name)
		}
	}

	if len(scores) == 0 {
		return unknownResult()
	}

	suggestions := make([]Suggestion, 0, len(scores))
	for rt, sum := range scores {
		conf := sum / 2
		if conf > maxFeatureConfidence {
			conf = maxFeatureConfidence
		}
		suggestions = append(suggestions, Suggestion{
			RoomType:   rt,
			Confidence: conf,
			Reason:     "detected features: " + strings.Join(evidence[rt], ", "),
		})
	}
	// Map iteration is random; break confidence ties by name for stable output.
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].RoomType < suggestions[j].RoomType
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return Result{
		RoomType:         suggestions[0].RoomType,
		Confidence:       suggestions[0].Confidence,
		Suggestions:      suggestions,
		DetectedFeatures: found,
	}
}
