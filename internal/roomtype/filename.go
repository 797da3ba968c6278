package roomtype

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// maxSuggestions caps every suggestion list returned to callers.
const maxSuggestions = 3

type filenamePattern struct {
	roomType   RoomType
	patterns   []*regexp.Regexp
	confidence float64
}

// filenamePatterns is evaluated in order. Master bedroom sits above bedroom
// so that its higher score is the one reported for "master bedroom 2".
var filenamePatterns = []filenamePattern{
	{MasterBedroom, compile(`\bmaster\s*bed(room)?\b`, `\bprimary\s*bed(room)?\b`, `\bmaster\s*suite\b`, `\bmbr\b`), 0.95},
	{Bedroom, compile(`\bbed\s*room\b`, `\bbedroom\b`, `\bbdrm?\b`, `\bguest\s*room\b`, `\bnursery\b`, `\bkids?\s*room\b`), 0.85},
	{Kitchen, compile(`\bkitchen\b`, `\bkitch\b`, `\bkit\b`, `\bpantry\b`), 0.9},
	{Bathroom, compile(`\bbath\s*room\b`, `\bbathroom\b`, `\bbath\b`, `\bpowder\s*room\b`, `\bensuite\b`, `\bwc\b`), 0.9},
	{LivingRoom, compile(`\bliving\s*room\b`, `\bliving\b`, `\blounge\b`, `\bsitting\s*room\b`), 0.85},
	{DiningRoom, compile(`\bdining\s*room\b`, `\bdining\b`, `\bdinette\b`), 0.85},
	{Office, compile(`\boffice\b`, `\bstudy\b`, `\bden\b`, `\bworkspace\b`), 0.8},
	{FamilyRoom, compile(`\bfamily\s*room\b`, `\bfamily\b`, `\bgreat\s*room\b`, `\bbonus\s*room\b`, `\brec\s*room\b`), 0.8},
	{Basement, compile(`\bbasement\b`, `\bcellar\b`, `\blower\s*level\b`), 0.85},
	{Outdoor, compile(`\boutdoor\b`, `\bpatio\b`, `\bdeck\b`, `\bbackyard\b`, `\byard\b`, `\bgarden\b`, `\bbalcony\b`, `\bporch\b`, `\bexterior\b`), 0.75},
	{Entryway, compile(`\bentry(way)?\b`, `\bfoyer\b`, `\bhallway\b`, `\bmudroom\b`), 0.75},
	{LaundryRoom, compile(`\blaundry\b`, `\butility\s*room\b`), 0.85},
	{Garage, compile(`\bgarage\b`, `\bcarport\b`), 0.9},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var (
	digitsRe     = regexp.MustCompile(`[0-9]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeFilename strips the extension, turns separators into spaces,
// drops digits and lowercases. "Master_Bedroom-01.JPG" becomes
// "master bedroom".
func NormalizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = digitsRe.ReplaceAllString(base, " ")
	base = strings.ToLower(base)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(base, " "))
}

// detectFromFilename runs the pattern table over the normalized filename.
func detectFromFilename(filename string) Result {
	norm := NormalizeFilename(filename)
	if norm == "" {
		return unknownResult()
	}

	var suggestions []Suggestion
	for _, entry := range filenamePatterns {
		for _, re := range entry.patterns {
			if match := re.FindString(norm); match != "" {
				suggestions = append(suggestions, Suggestion{
					RoomType:   entry.roomType,
					Confidence: entry.confidence,
					Reason:     "filename contains \"" + match + "\"",
				})
				break
			}
		}
	}
	if len(suggestions) == 0 {
		return unknownResult()
	}

	sortSuggestions(suggestions)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return Result{
		RoomType:         suggestions[0].RoomType,
		Confidence:       suggestions[0].Confidence,
		Suggestions:      suggestions,
		DetectedFeatures: []string{},
	}
}

// sortSuggestions orders by confidence descending. Ties keep table order.
func sortSuggestions(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Confidence > s[j].Confidence
	})
}
