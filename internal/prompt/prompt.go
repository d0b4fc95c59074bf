package prompt

import "strings"

// Clauses shared by every composed prompt, in the order they are emitted.
const (
	identityClause = "Transform the subject into a charming pet portrait. Keep the original animal's species, breed traits, fur pattern and anatomy exactly as in the photo; if the subject is human, reimagine them as a dog with matching personality."
	cameraClause   = "Professional studio photography, 85mm lens, soft key light with gentle rim light, shallow depth of field, sharp focus on the eyes."
	negativeClause = "extra limbs, deformed anatomy, text, watermark, logo, low resolution, oversaturated colors, human hands"
)

const defaultStyle = "Photorealistic"

// styleFragments maps a preset label to its prompt fragment. Unknown labels
// fall back to defaultStyle rather than erroring.
var styleFragments = map[string]string{
	"Photorealistic": "ultra-realistic photograph, natural fur texture, true-to-life colors",
	"Royal Portrait": "regal oil painting, ornate renaissance costume, dramatic rembrandt lighting, gilded frame mood",
	"Watercolor":     "loose watercolor painting, soft washes of color, visible paper texture, gentle gradients",
	"Pop Art":        "bold pop art, halftone dots, vivid complementary colors, clean graphic outlines",
	"Anime":          "anime illustration, cel shading, expressive oversized eyes, clean line art",
	"Oil Painting":   "classical oil painting, thick impasto brush strokes, warm gallery lighting",
	"Cyberpunk":      "cyberpunk scene, neon rim lighting, holographic reflections, moody night city backdrop",
	"Vintage":        "vintage film photograph, faded kodachrome palette, subtle grain, 1970s studio backdrop",
	"Pencil Sketch":  "detailed graphite pencil sketch, cross-hatched shading, white paper background",
	"Fantasy":        "epic fantasy character art, enchanted forest backdrop, magical glowing accents",
	"Minimalist":     "minimalist flat illustration, two-tone palette, negative space, clean geometry",
	"Christmas":      "cozy christmas scene, knitted sweater, warm fairy lights bokeh, festive colors",
}

type aspectGuidance struct {
	Ratio string // colon form shown to the model, e.g. "4:5"
	Text  string
}

const defaultAspectKey = "4_5"

// aspectTable maps an underscore ratio token to framing guidance. Unknown
// tokens fall back to the 4:5 portrait default.
var aspectTable = map[string]aspectGuidance{
	"1_1":  {"1:1", "Square 1:1 composition, subject centered with even margins."},
	"4_5":  {"4:5", "Portrait 4:5 composition, head and chest framing with balanced headroom."},
	"3_4":  {"3:4", "Portrait 3:4 composition, subject filling two thirds of the frame."},
	"16_9": {"16:9", "Wide 16:9 composition, subject off-center with environmental context."},
	"9_16": {"9:16", "Tall 9:16 composition, full-body framing suited for mobile screens."},
}

// StyleLabels returns the known preset labels, for the UI preset picker.
func StyleLabels() []string {
	out := make([]string, 0, len(styleFragments))
	for k := range styleFragments {
		out = append(out, k)
	}
	return out
}

// Compose builds the final generation prompt. A non-empty customText wins
// verbatim (trimmed) over everything else. Deterministic for equal inputs.
func Compose(species, styleLabel, cropRatio, customText string) string {
	if custom := strings.TrimSpace(customText); custom != "" {
		return custom
	}
	fragment, ok := styleFragments[styleLabel]
	if !ok {
		fragment = styleFragments[defaultStyle]
	}
	aspect, ok := aspectTable[cropRatio]
	if !ok {
		aspect = aspectTable[defaultAspectKey]
	}
	subject := identityClause
	if sp := strings.TrimSpace(species); sp != "" {
		subject = "Subject: a " + sp + ". " + identityClause
	}
	parts := []string{
		subject,
		cameraClause,
		"Style: " + fragment + ".",
		"Avoid: " + negativeClause + ".",
		aspect.Text,
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// AspectRatio resolves an underscore token to its colon form for the
// provider's aspect_ratio parameter ("4_5" -> "4:5").
func AspectRatio(cropRatio string) string {
	if a, ok := aspectTable[cropRatio]; ok {
		return a.Ratio
	}
	return aspectTable[defaultAspectKey].Ratio
}
