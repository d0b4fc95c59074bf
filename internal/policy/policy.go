package policy

import "strings"

// Mode is a named generation strategy trading off speed, resolution and
// feature set.
type Mode string

const (
	ModeSimple     Mode = "simple"     // single pass, fastest
	ModeHybrid     Mode = "hybrid"     // base model + 2x upscale
	ModeMultimodel Mode = "multimodel" // HD base model + 4x upscale
)

type Tier string

const (
	TierGuest    Tier = "guest"
	TierLoggedIn Tier = "logged_in"
	TierPremium  Tier = "premium"
)

// Strategy describes what a tier gets. One authoritative table; the prompt
// defaults and the access checks both read from here.
type Strategy struct {
	DefaultMode    Mode     `json:"default_mode"`
	AvailableModes []Mode   `json:"available_modes"`
	MaxResolution  int      `json:"max_resolution"`
	EstimatedTime  string   `json:"estimated_time"`
	Features       []string `json:"features"`
}

var strategies = map[Tier]Strategy{
	TierGuest: {
		DefaultMode:    ModeSimple,
		AvailableModes: []Mode{ModeSimple},
		MaxResolution:  1024,
		EstimatedTime:  "~30s",
		Features:       []string{"standard styles"},
	},
	TierLoggedIn: {
		DefaultMode:    ModeHybrid,
		AvailableModes: []Mode{ModeSimple, ModeHybrid, ModeMultimodel},
		MaxResolution:  2048,
		EstimatedTime:  "~60s",
		Features:       []string{"standard styles", "2x upscale", "4x upscale", "history"},
	},
	// Premium exists in the tier model but no current rule distinguishes it
	// from logged_in beyond quota; do not invent one here.
	TierPremium: {
		DefaultMode:    ModeHybrid,
		AvailableModes: []Mode{ModeSimple, ModeHybrid, ModeMultimodel},
		MaxResolution:  2048,
		EstimatedTime:  "~60s",
		Features:       []string{"standard styles", "2x upscale", "4x upscale", "history", "unlimited generations"},
	},
}

// Selection is the resolved pipeline decision. Never an error: a denied
// request degrades to a usable fallback mode plus an UpgradeMessage; the
// endpoint decides whether CanAccess=false should block anything.
type Selection struct {
	SelectedMode   Mode   `json:"selected_mode"`
	UserTier       Tier   `json:"user_tier"`
	CanAccess      bool   `json:"can_access"`
	UpgradeMessage string `json:"upgrade_message,omitempty"`
}

// TierFor classifies a caller. premium is only honored for identified users.
func TierFor(userID string, premium bool) Tier {
	if strings.TrimSpace(userID) == "" {
		return TierGuest
	}
	if premium {
		return TierPremium
	}
	return TierLoggedIn
}

// StrategyFor returns the strategy table entry for a tier.
func StrategyFor(tier Tier) Strategy {
	if s, ok := strategies[tier]; ok {
		return s
	}
	return strategies[TierGuest]
}

// Select resolves the pipeline mode for one generation request.
// force, when set, bypasses tier checks entirely (administrative override).
func Select(userID string, requested Mode, hint string, force Mode) Selection {
	tier := TierFor(userID, false)
	return SelectForTier(tier, requested, hint, force)
}

// SelectForTier is Select with the tier already classified (the API layer
// knows about premium flags; the pure policy does not).
func SelectForTier(tier Tier, requested Mode, hint string, force Mode) Selection {
	s := StrategyFor(tier)
	if force != "" {
		return Selection{SelectedMode: force, UserTier: tier, CanAccess: true}
	}
	if requested != "" && contains(s.AvailableModes, requested) {
		return Selection{SelectedMode: requested, UserTier: tier, CanAccess: true}
	}
	sel := Selection{SelectedMode: recommend(s, hint), UserTier: tier, CanAccess: true}
	if requested != "" {
		sel.UpgradeMessage = "The " + string(requested) + " pipeline is not available on the " + string(tier) +
			" tier. Using " + string(sel.SelectedMode) + " instead. Sign in to unlock higher-quality pipelines."
	}
	return sel
}

func recommend(s Strategy, hint string) Mode {
	switch hint {
	case "fast":
		return ModeSimple
	case "quality":
		if contains(s.AvailableModes, ModeMultimodel) {
			return ModeMultimodel
		}
		return s.DefaultMode
	default: // "auto" or anything else
		return s.DefaultMode
	}
}

func contains(modes []Mode, m Mode) bool {
	for _, v := range modes {
		if v == m {
			return true
		}
	}
	return false
}
