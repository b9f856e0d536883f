package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// noteBodyPrefixLen caps how much of a note's body participates in its
// fingerprint when the note has no subject.
const noteBodyPrefixLen = 50

// Fingerprint computes the normalized content signature of an item. It is a
// pure function of the item's category and a fixed per-category field set:
// two items with equal fingerprints inside the same destination container
// are considered duplicates. Field getters never fail (zero values stand in
// for unreadable fields), so a fingerprint is always produced; a partial one
// just matches more weakly.
//
// The exact field order and the "|" delimiter are load-bearing: fingerprints
// are recomputed every run and must line up with what a previous run would
// have computed for the same item.
func Fingerprint(item provider.Item, cat types.Category) string {
	fields := []string{cat.FingerprintTag()}

	switch cat {
	case types.CategoryAppointment:
		fields = append(fields,
			normText(item.Subject()),
			normTime(item.Start()),
			durationMinutes(item.Start(), item.End()),
			normText(item.Location()),
		)
	case types.CategoryContact:
		fields = append(fields,
			normText(item.FullName()),
			normText(item.Company()),
			normText(item.Email(1)),
			normText(item.Email(2)),
			normText(item.Email(3)),
		)
	case types.CategoryTask:
		fields = append(fields,
			normText(item.Subject()),
			normTime(item.Start()),
			normTime(item.Due()),
			strconv.Itoa(item.PercentComplete()),
		)
	case types.CategoryNote:
		subject := normText(item.Subject())
		if subject == "" {
			// Truncation counts runes, not bytes, so a multi-byte
			// character at the boundary is never split.
			body := []rune(normText(item.Body()))
			if len(body) > noteBodyPrefixLen {
				body = body[:noteBodyPrefixLen]
			}
			subject = string(body)
		}
		fields = append(fields, subject)
	case types.CategoryJournal:
		fields = append(fields,
			normText(item.Subject()),
			normTime(item.Start()),
		)
	default: // mail and other
		fields = append(fields,
			normText(item.Subject()),
			normTime(item.SentOn()),
			normText(item.SenderAddress()),
			strconv.FormatInt(item.Size(), 10),
		)
	}

	return strings.Join(fields, "|")
}

func normText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normTime renders a timestamp as whole minutes since the Unix epoch in UTC,
// discarding seconds. Second-level jitter between copies of the same item
// therefore does not defeat duplicate detection. A zero time renders empty.
func normTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UTC().Truncate(time.Minute).Unix()/60, 10)
}

// durationMinutes renders end-start in whole minutes, empty when either end
// is missing.
func durationMinutes(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return ""
	}
	return strconv.FormatInt(int64(end.Sub(start)/time.Minute), 10)
}
