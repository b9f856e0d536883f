package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/storemerge/internal/provider/memstore"
	"github.com/brandon/storemerge/pkg/types"
)

func newItem(t *testing.T, data types.ItemData) *memstore.Item {
	t.Helper()
	session := memstore.NewSession()
	store := session.AddStore("fp")
	return store.RootFolder().AddItem(data)
}

func TestFingerprintDeterministic(t *testing.T) {
	data := types.ItemData{
		TypeTag: "IPM.Note",
		Subject: "Quarterly report",
		SentOn:  time.Date(2024, 3, 14, 9, 26, 53, 0, time.UTC),
		Size:    2048,
	}
	a := Fingerprint(newItem(t, data), types.CategoryMail)
	b := Fingerprint(newItem(t, data), types.CategoryMail)
	assert.Equal(t, a, b)
}

func TestFingerprintNormalization(t *testing.T) {
	base := types.ItemData{
		TypeTag: "IPM.Note",
		Subject: "Quarterly Report",
		SentOn:  time.Date(2024, 3, 14, 9, 26, 10, 0, time.UTC),
		Size:    2048,
	}

	variant := base
	variant.Subject = "  quarterly report "
	variant.SentOn = time.Date(2024, 3, 14, 9, 26, 55, 0, time.UTC) // same minute

	assert.Equal(t,
		Fingerprint(newItem(t, base), types.CategoryMail),
		Fingerprint(newItem(t, variant), types.CategoryMail),
		"letter case, whitespace and sub-minute time must not change the fingerprint")

	nextMinute := base
	nextMinute.SentOn = time.Date(2024, 3, 14, 9, 27, 0, 0, time.UTC)
	assert.NotEqual(t,
		Fingerprint(newItem(t, base), types.CategoryMail),
		Fingerprint(newItem(t, nextMinute), types.CategoryMail),
		"a different minute must change the fingerprint")
}

func TestFingerprintFieldSets(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		data types.ItemData
		cat  types.Category
		want string
	}{
		{
			name: "appointment",
			data: types.ItemData{Subject: "Standup", Start: start, End: start.Add(30 * time.Minute), Location: "Room 1"},
			cat:  types.CategoryAppointment,
			want: "appointment|standup|28575960|30|room 1",
		},
		{
			name: "contact",
			data: types.ItemData{FullName: "Ada Lovelace", Company: "Analytical", Email1: "ada@example.com"},
			cat:  types.CategoryContact,
			want: "contact|ada lovelace|analytical|ada@example.com||",
		},
		{
			name: "task",
			data: types.ItemData{Subject: "File taxes", Start: start, Due: start.Add(24 * time.Hour), PercentComplete: 25},
			cat:  types.CategoryTask,
			want: "task|file taxes|28575960|28577400|25",
		},
		{
			name: "journal",
			data: types.ItemData{Subject: "Call log", Start: start},
			cat:  types.CategoryJournal,
			want: "journal|call log|28575960",
		},
		{
			name: "note with subject",
			data: types.ItemData{Subject: "Shopping", Body: "milk, eggs"},
			cat:  types.CategoryNote,
			want: "note|shopping",
		},
		{
			name: "other shares the mail tag",
			data: types.ItemData{Subject: "Misc", SentOn: start, SenderAddress: "a@b.c", Size: 7},
			cat:  types.CategoryOther,
			want: "mail|misc|28575960|a@b.c|7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fingerprint(newItem(t, tt.data), tt.cat))
		})
	}
}

func TestFingerprintNoteBodyFallback(t *testing.T) {
	long := strings.Repeat("x", 80)
	fp := Fingerprint(newItem(t, types.ItemData{TypeTag: "IPM.StickyNote", Body: long}), types.CategoryNote)
	assert.Equal(t, "note|"+strings.Repeat("x", noteBodyPrefixLen), fp)
}

func TestFingerprintNoteBodyTruncatesByRunes(t *testing.T) {
	// Multi-byte characters at the cutoff must survive intact; a byte-wise
	// slice would leave invalid UTF-8 in the fingerprint.
	long := strings.Repeat("é", 80)
	fp := Fingerprint(newItem(t, types.ItemData{TypeTag: "IPM.StickyNote", Body: long}), types.CategoryNote)
	assert.Equal(t, "note|"+strings.Repeat("é", noteBodyPrefixLen), fp)
	assert.True(t, strings.HasSuffix(fp, "é"))
}

func TestFingerprintMissingFieldsStillMatch(t *testing.T) {
	// An item with unreadable (zero) fields still fingerprints; empty
	// placeholders match other items missing the same fields.
	fp := Fingerprint(newItem(t, types.ItemData{TypeTag: "IPM.Appointment"}), types.CategoryAppointment)
	assert.Equal(t, "appointment||||", fp)
}
