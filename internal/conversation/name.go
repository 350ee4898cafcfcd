// ABOUTME: Human-readable session name generation
// ABOUTME: Produces adjective-noun-hex identifiers like brave-falcon-1a2b3c

package conversation

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

var sessionAdjectives = []string{
	"brave", "calm", "clever", "eager", "gentle", "jolly",
	"keen", "lively", "merry", "nimble", "proud", "quiet",
	"swift", "wise", "bold", "bright",
}

var sessionNouns = []string{
	"falcon", "otter", "heron", "lynx", "crane", "badger",
	"tiger", "panda", "raven", "salmon", "walrus", "wombat",
	"gecko", "ibis", "koala", "marmot",
}

// GenerateSessionName returns a new session identifier. The hex suffix comes
// from a fresh UUID, so collisions are as unlikely as UUID collisions even
// though the words repeat.
func GenerateSessionName() string {
	adjective := sessionAdjectives[rand.Intn(len(sessionAdjectives))]
	noun := sessionNouns[rand.Intn(len(sessionNouns))]
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("%s-%s-%s", adjective, noun, suffix)
}
