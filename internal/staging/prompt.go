package staging

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

// ErrUnknownStyle is returned for a style preset that is not in the catalog.
var ErrUnknownStyle = errors.New("unknown style preset")

// maxCustomPromptLen bounds agent-supplied instructions.
const maxCustomPromptLen = 500

// StyleSystemInstruction frames every staging request.
const StyleSystemInstruction = `You are a professional real-estate virtual stager.
Add furniture and decor to the photographed room. Never change the architecture:
keep walls, windows, doors, floors, ceilings, fixtures, lighting direction and
camera perspective exactly as photographed. Do not add text, logos or people.
Return one photorealistic image at the same framing as the input.`

// stylePresets describes each catalog style in the words sent to the model.
var stylePresets = map[string]string{
	"modern":       "clean modern furniture with neutral tones, sleek lines and a few bold accent pieces",
	"scandinavian": "light Scandinavian furniture in pale wood, soft whites and greys, cozy textiles and plants",
	"farmhouse":    "modern farmhouse decor with reclaimed wood, warm neutrals, woven textures and black metal accents",
	"coastal":      "airy coastal decor with whites, sandy beiges, soft blues, linen and rattan",
	"industrial":   "industrial loft furniture with leather, raw wood, matte black steel and Edison lighting",
	"luxury":       "high-end luxury furnishings with rich fabrics, marble, brass accents and statement lighting",
	"minimalist":   "a minimalist arrangement with very few pieces, open space and a restrained monochrome palette",
	"traditional":  "classic traditional furniture with warm woods, patterned rugs and symmetrical arrangements",
}

// Styles lists the preset names in alphabetical order.
func Styles() []string {
	names := make([]string, 0, len(stylePresets))
	for name := range stylePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidStyle reports whether style is a catalog preset.
func ValidStyle(style string) bool {
	_, ok := stylePresets[strings.ToLower(style)]
	return ok
}

// roomFurnishing names what belongs in each room so the model does not put
// a bed in a kitchen.
var roomFurnishing = map[roomtype.RoomType]string{
	roomtype.LivingRoom:    "a sofa, accent chairs, a coffee table, a rug and wall art",
	roomtype.Bedroom:       "a bed with bedding, nightstands with lamps and a rug",
	roomtype.MasterBedroom: "a king bed with layered bedding, matching nightstands, a bench and a rug",
	roomtype.Kitchen:       "bar stools, a bowl of fruit and a few countertop accessories; do not change cabinets or appliances",
	roomtype.Bathroom:      "folded towels, a plant and minimal vanity accessories; do not change fixtures",
	roomtype.DiningRoom:    "a dining table with chairs, a centerpiece and a pendant-friendly layout",
	roomtype.Office:        "a desk, an office chair, shelving and a lamp",
	roomtype.FamilyRoom:    "a sectional sofa, a media console, a rug and casual seating",
	roomtype.Basement:      "a sectional, a game or media area and soft lighting",
	roomtype.Outdoor:       "outdoor seating, potted plants and a small dining set",
	roomtype.Entryway:      "a console table, a mirror, a bench and a runner rug",
	roomtype.LaundryRoom:   "baskets, shelving with folded linens and a plant",
	roomtype.Garage:        "tidy storage shelving and a workbench",
}

// BuildPrompt assembles the staging instruction for one generation. An
// empty style defaults to modern.
func BuildPrompt(room roomtype.RoomType, style, custom string) (string, error) {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = "modern"
	}
	look, ok := stylePresets[style]
	if !ok {
		return "", fmt.Errorf("%q: %w", style, ErrUnknownStyle)
	}

	custom = strings.TrimSpace(custom)
	if len(custom) > maxCustomPromptLen {
		return "", fmt.Errorf("custom prompt is %d characters; the limit is %d", len(custom), maxCustomPromptLen)
	}

	var sb strings.Builder
	if room.Valid() && room != roomtype.Unknown {
		fmt.Fprintf(&sb, "Virtually stage this %s in a %s style: %s.", strings.ToLower(room.DisplayName()), style, look)
		if f, ok := roomFurnishing[room]; ok {
			fmt.Fprintf(&sb, " Include %s.", f)
		}
	} else {
		fmt.Fprintf(&sb, "Virtually stage this room in a %s style: %s. Choose furniture that suits the space.", style, look)
	}
	if custom != "" {
		fmt.Fprintf(&sb, "\nAdditional instructions from the agent: %s", custom)
	}
	return sb.String(), nil
}
