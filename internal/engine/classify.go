package engine

import (
	"strings"

	"github.com/brandon/storemerge/pkg/types"
)

// typeTagPrefixes is the ordered routing table. The first matching prefix
// wins, so longer prefixes that share a stem with a shorter one (StickyNote
// before Note, DistList before nothing) must come first. An unmatched tag
// routes to Mail, which shares the inbox container with Other.
var typeTagPrefixes = []struct {
	prefix   string
	category types.Category
}{
	{"IPM.Appointment", types.CategoryAppointment},
	{"IPM.Schedule", types.CategoryAppointment},
	{"IPM.Contact", types.CategoryContact},
	{"IPM.DistList", types.CategoryContact},
	{"IPM.Task", types.CategoryTask},
	{"IPM.StickyNote", types.CategoryNote},
	{"IPM.Activity", types.CategoryJournal},
	{"IPM.Note", types.CategoryMail},
}

// Classify maps an item's type tag to its routing category. Matching is
// case-insensitive prefix matching against the ordered table; anything
// unrecognized is treated as mail.
func Classify(typeTag string) types.Category {
	tag := strings.TrimSpace(typeTag)
	for _, entry := range typeTagPrefixes {
		if len(tag) >= len(entry.prefix) && strings.EqualFold(tag[:len(entry.prefix)], entry.prefix) {
			return entry.category
		}
	}
	return types.CategoryMail
}
