package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/storemerge/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		typeTag string
		want    types.Category
	}{
		{"appointment", "IPM.Appointment", types.CategoryAppointment},
		{"meeting request", "IPM.Schedule.Meeting.Request", types.CategoryAppointment},
		{"contact", "IPM.Contact", types.CategoryContact},
		{"distribution list", "IPM.DistList", types.CategoryContact},
		{"task", "IPM.Task", types.CategoryTask},
		{"task with suffix", "IPM.Task.Recurring", types.CategoryTask},
		{"sticky note", "IPM.StickyNote", types.CategoryNote},
		{"journal", "IPM.Activity", types.CategoryJournal},
		{"mail", "IPM.Note", types.CategoryMail},
		{"mail subclass", "IPM.Note.SMIME", types.CategoryMail},
		{"unknown tag defaults to mail", "REPORT.IPM.Note.NDR", types.CategoryMail},
		{"empty tag defaults to mail", "", types.CategoryMail},
		{"case insensitive", "ipm.appointment", types.CategoryAppointment},
		{"surrounding whitespace", "  IPM.Task  ", types.CategoryTask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.typeTag))
		})
	}
}

func TestClassifyStickyNoteBeforeNote(t *testing.T) {
	// IPM.StickyNote shares a stem with IPM.Note but must not route to mail.
	assert.Equal(t, types.CategoryNote, Classify("IPM.StickyNote"))
	assert.Equal(t, types.CategoryMail, Classify("IPM.Note"))
}
