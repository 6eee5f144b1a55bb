// ABOUTME: Generator for human-friendly kebab-case identities handed out at signup
// ABOUTME: Combines an adjective and a plural noun with a short random suffix

// Package names generates candidate identities for new users.
package names

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var adjectives = []string{
	"amber", "ancient", "arctic", "bitter", "bright", "broken", "burning",
	"cosmic", "crimson", "crystal", "dancing", "electric", "empty", "endless",
	"fading", "falling", "frozen", "gentle", "ghostly", "golden", "hidden",
	"hollow", "iron", "lonely", "lucky", "midnight", "neon", "paper", "quiet",
	"restless", "rusty", "scarlet", "secret", "silent", "silver", "sleepy",
	"static", "velvet", "wandering", "wild",
}

var nouns = []string{
	"anchors", "arrows", "beacons", "bees", "cassettes", "comets", "crows",
	"daggers", "dreamers", "echoes", "embers", "foxes", "ghosts", "giants",
	"harbors", "hearts", "hounds", "kings", "lanterns", "lions", "machines",
	"magnets", "mirrors", "moths", "owls", "pilots", "prophets", "ravens",
	"rebels", "rivers", "robots", "sailors", "satellites", "shadows",
	"sparrows", "strangers", "tigers", "tides", "wolves", "wrecks",
}

// Generate returns a candidate identity such as "silver-wolves-3f2a".
// Candidates are not guaranteed unique; callers check for collisions.
func Generate() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return adjectives[rand.IntN(len(adjectives))] + "-" + nouns[rand.IntN(len(nouns))] + "-" + suffix
}
