package release

import (
	"strconv"
	"strings"
)

// Stability is a hint derived from a channel's name pattern.
type Stability int

const (
	// StabilityUnknown is used when the name matches no known pattern.
	StabilityUnknown Stability = iota
	// StabilityStable marks mainline channels.
	StabilityStable
	// StabilityPreRelease marks development and candidate channels.
	StabilityPreRelease
)

// String returns a human-readable stability label.
func (s Stability) String() string {
	switch s {
	case StabilityStable:
		return "stable"
	case StabilityPreRelease:
		return "pre-release"
	default:
		return "unknown"
	}
}

// Channel is a named version stream from which server source is fetched.
// Channels are immutable once fetched from the catalog.
type Channel struct {
	// Name is the branch or tag identifier.
	Name string
	// Stability is derived from Name and is informational only.
	Stability Stability
}

// NewChannel builds a channel, classifying its stability from the name.
func NewChannel(name string) Channel {
	return Channel{
		Name:      name,
		Stability: classify(name),
	}
}

// classify maps well-known name patterns to a stability hint.
func classify(name string) Stability {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case lower == "master" || lower == "main" || lower == "stable":
		return StabilityStable
	case lower == "dev" || lower == "develop" ||
		strings.HasPrefix(lower, "beta") || strings.HasPrefix(lower, "rc") ||
		strings.Contains(lower, "alpha"):
		return StabilityPreRelease
	default:
		return StabilityUnknown
	}
}

// DefaultChannels is the fixed fallback sequence used when the catalog is unreachable.
// The first entry is the default choice.
func DefaultChannels() []Channel {
	return []Channel{
		NewChannel("master"),
		NewChannel("dev"),
	}
}

// Provenance records how a choice was resolved, so callers can tell an
// explicit operator decision from a silent fallback.
type Provenance int

const (
	// ProvenanceExplicit means the input selected the channel directly.
	ProvenanceExplicit Provenance = iota
	// ProvenanceFallback means the input was empty or invalid and the
	// first catalog entry was used instead.
	ProvenanceFallback
)

// String returns a human-readable provenance label.
func (p Provenance) String() string {
	if p == ProvenanceExplicit {
		return "explicit"
	}

	return "fallback"
}

// Choice is a resolved channel selection together with its provenance.
type Choice struct {
	Channel    Channel
	Provenance Provenance
}

// Choose resolves operator input against an ordered channel sequence.
//
// A 1-based number within range selects that channel. An exact name match
// selects that channel (used by non-interactive pre-seeding). Anything else,
// including empty input, resolves to the first channel with fallback
// provenance. Choose never fails: bad input is reported via provenance,
// not as an error.
func Choose(channels []Channel, input string) Choice {
	if len(channels) == 0 {
		channels = DefaultChannels()
	}

	input = strings.TrimSpace(input)

	if index, err := strconv.Atoi(input); err == nil {
		if index >= 1 && index <= len(channels) {
			return Choice{Channel: channels[index-1], Provenance: ProvenanceExplicit}
		}

		return Choice{Channel: channels[0], Provenance: ProvenanceFallback}
	}

	for _, channel := range channels {
		if channel.Name == input {
			return Choice{Channel: channel, Provenance: ProvenanceExplicit}
		}
	}

	return Choice{Channel: channels[0], Provenance: ProvenanceFallback}
}
