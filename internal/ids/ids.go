package ids

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// idBytes gives 120 bits of entropy.
const idBytes = 15

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a random 24 character lowercase base32 identifier.
func New() string {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return strings.ToLower(encoding.EncodeToString(buf))
}
