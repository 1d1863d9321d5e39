package resolve

import (
	"strings"
	"unicode"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/google/uuid"
)

// Namespace is the fixed UUID namespace of entity GUIDs. Changing it
// changes every GUID ever issued.
var Namespace = uuid.MustParse("6f1d3b8e-2c4a-5e7f-9a0b-1c2d3e4f5a6b")

// GUID returns the deterministic identifier of a (name, type) pair:
// UUID5(Namespace, lower(name) + ":" + type).
func GUID(name string, t common.EntityType) string {
	return uuid.NewSHA1(Namespace, []byte(strings.ToLower(name)+":"+string(t))).String()
}

// Slug turns a canonical name into an id: lower case, runs of anything but
// letters and digits become a single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "entity"
	}
	return b.String()
}

// disambiguatedID is the id used when two different entities share a slug.
func disambiguatedID(slug, guid string) string {
	return slug + "-" + strings.ReplaceAll(guid, "-", "")[:8]
}
