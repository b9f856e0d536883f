package types

import "time"

// Category is one of the canonical item classifications used for routing.
type Category int

const (
	CategoryAppointment Category = iota
	CategoryContact
	CategoryTask
	CategoryNote
	CategoryJournal
	CategoryMail
	CategoryOther

	NumCategories = 7
)

// String returns the display name of the category.
func (c Category) String() string {
	switch c {
	case CategoryAppointment:
		return "appointment"
	case CategoryContact:
		return "contact"
	case CategoryTask:
		return "task"
	case CategoryNote:
		return "note"
	case CategoryJournal:
		return "journal"
	case CategoryMail:
		return "mail"
	case CategoryOther:
		return "other"
	}
	return "unknown"
}

// FingerprintTag returns the category token used as the first segment of a
// fingerprint. Mail and Other share a destination container, so they share
// a tag as well.
func (c Category) FingerprintTag() string {
	if c == CategoryOther {
		return "mail"
	}
	return c.String()
}

// ContainerKey identifies a container as (store-id, entry-id). It is stable
// across re-opens within a run, which makes it safe to hold while the live
// handle it came from has been released.
type ContainerKey struct {
	StoreID string
	EntryID string
}

// ItemData carries the full field set an item can expose. Providers use it
// to seed and persist items; getters on a live item read from a snapshot of
// these fields.
type ItemData struct {
	TypeTag         string
	Subject         string
	Body            string
	Start           time.Time
	End             time.Time
	Due             time.Time
	SentOn          time.Time
	Location        string
	FullName        string
	Company         string
	Email1          string
	Email2          string
	Email3          string
	SenderAddress   string
	Size            int64
	PercentComplete int
}
