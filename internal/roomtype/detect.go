package roomtype

import "strings"

// filenameOverrideThreshold is the confidence at which filename evidence is
// trusted over any feature score.
const filenameOverrideThreshold = 0.8

// Detect guesses the room type for filename, using meta when provided.
func Detect(filename string, meta *Metadata) Result {
	byName := detectFromFilename(filename)
	byFeature := detectFromFeatures(filename, meta)

	merged := mergeSuggestions(byName.Suggestions, byFeature.Suggestions)
	features := byFeature.DetectedFeatures
	if features == nil {
		features = []string{}
	}

	if len(merged) == 0 {
		res := unknownResult()
		res.DetectedFeatures = features
		return res
	}

	res := Result{
		RoomType:         merged[0].RoomType,
		Confidence:       merged[0].Confidence,
		Suggestions:      merged,
		DetectedFeatures: features,
	}
	if byName.RoomType != Unknown && byName.Confidence >= filenameOverrideThreshold {
		res.RoomType = byName.RoomType
		res.Confidence = byName.Confidence
	}
	return res
}

// mergeSuggestions unions two suggestion lists by room type, keeping the
// higher-confidence entry for each, then re-sorts and truncates.
func mergeSuggestions(lists ...[]Suggestion) []Suggestion {
	best := make(map[RoomType]int)
	var out []Suggestion
	for _, list := range lists {
		for _, s := range list {
			if i, ok := best[s.RoomType]; ok {
				if s.Confidence > out[i].Confidence {
					out[i] = s
				}
				continue
			}
			best[s.RoomType] = len(out)
			out = append(out, s)
		}
	}
	sortSuggestions(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// WithFallback attaches FallbackSuggestions when r is unknown.
func (r Result) WithFallback(filename string) Result {
	if r.RoomType == Unknown {
		r.Fallback = FallbackSuggestions(filename)
	}
	return r
}

// fallbackOrder lists the common room types offered when Detect finds
// nothing.
var fallbackOrder = []RoomType{LivingRoom, Bedroom, Kitchen, Bathroom, DiningRoom}

// FallbackSuggestions returns the five common room types for photos Detect
// could not place. Filenames mentioning "room" or "space" move the open
// living areas to the front.
func FallbackSuggestions(filename string) []Suggestion {
	order := fallbackOrder
	reason := "common room type"
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "room") || strings.Contains(lower, "space") {
		order = []RoomType{LivingRoom, DiningRoom, Bedroom, Kitchen, Bathroom}
		reason = "filename mentions a room or space"
	}

	out := make([]Suggestion, len(order))
	for i, rt := range order {
		out[i] = Suggestion{
			RoomType:   rt,
			Confidence: 0.3 - 0.05*float64(i),
			Reason:     reason,
		}
	}
	return out
}
