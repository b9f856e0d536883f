package localstore

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/storemerge/internal/config"
	"github.com/brandon/storemerge/internal/engine"
	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openStore(t *testing.T, session *Session, path string) *Store {
	t.Helper()
	store, err := session.OpenStore(path, true)
	require.NoError(t, err)
	return store.(*Store)
}

func TestOpenCreatesAndSeedsStore(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	store := openStore(t, session, filepath.Join(t.TempDir(), "archive.db"))

	assert.NotEmpty(t, store.ID())

	root, err := store.Root()
	require.NoError(t, err)
	children, err := root.ChildCount()
	require.NoError(t, err)
	assert.Equal(t, 6, children, "root carries the six default folders")

	wantNames := map[types.Category]string{
		types.CategoryMail:        "Inbox",
		types.CategoryAppointment: "Calendar",
		types.CategoryContact:     "Contacts",
		types.CategoryTask:        "Tasks",
		types.CategoryNote:        "Notes",
		types.CategoryJournal:     "Journal",
		types.CategoryOther:       "Inbox",
	}
	for cat, name := range wantNames {
		folder, err := store.DefaultContainer(cat)
		require.NoError(t, err, "category %s", cat)
		assert.Equal(t, name, folder.Name())
		count, err := folder.ItemCount()
		require.NoError(t, err)
		assert.Zero(t, count)
	}
}

func TestOpenMissingStore(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()

	_, err := session.OpenStore(filepath.Join(t.TempDir(), "absent.db"), false)
	assert.ErrorIs(t, err, provider.ErrStoreNotFound)
}

func TestReopenKeepsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	session := NewSession(newTestLogger(), "")
	store := openStore(t, session, path)
	storeID := store.ID()
	inbox, err := store.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	inboxKey := inbox.Key()
	require.NoError(t, session.Close())

	reopened := NewSession(newTestLogger(), "")
	defer reopened.Close()
	store2 := openStore(t, reopened, path)
	assert.Equal(t, storeID, store2.ID(), "store id survives reopen")
	inbox2, err := store2.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	assert.Equal(t, inboxKey, inbox2.Key(), "container keys are durable")
}

func TestOpenStoreReusesHandle(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	path := filepath.Join(t.TempDir(), "archive.db")

	first := openStore(t, session, path)
	second := openStore(t, session, path)
	assert.Same(t, first, second)
}

func TestDefaultStore(t *testing.T) {
	noDefault := NewSession(newTestLogger(), "")
	_, err := noDefault.DefaultStore()
	assert.ErrorIs(t, err, provider.ErrNoDefaultStore)

	path := filepath.Join(t.TempDir(), "default.db")
	session := NewSession(newTestLogger(), path)
	defer session.Close()
	store, err := session.DefaultStore()
	require.NoError(t, err)
	assert.Equal(t, "default.db", store.Name())
}

func TestAppendAndFetchRoundTrip(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	store := openStore(t, session, filepath.Join(t.TempDir(), "archive.db"))
	calendar, err := store.DefaultContainer(types.CategoryAppointment)
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data := types.ItemData{
		TypeTag:  "IPM.Appointment",
		Subject:  "Standup",
		Body:     "daily sync",
		Start:    start,
		End:      start.Add(30 * time.Minute),
		Location: "Room 1",
		Size:     512,
	}
	require.NoError(t, store.AppendItem(calendar, data))

	count, err := calendar.ItemCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	item, err := calendar.ItemAt(1)
	require.NoError(t, err)
	assert.Equal(t, "IPM.Appointment", item.TypeTag())
	assert.Equal(t, "Standup", item.Subject())
	assert.Equal(t, "daily sync", item.Body())
	assert.True(t, item.Start().Equal(start))
	assert.True(t, item.End().Equal(start.Add(30*time.Minute)))
	assert.True(t, item.Due().IsZero(), "unset times come back zero")
	assert.Equal(t, "Room 1", item.Location())
	assert.Equal(t, int64(512), item.Size())
}

func TestItemOrderFollowsInsertion(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	store := openStore(t, session, filepath.Join(t.TempDir(), "archive.db"))
	inbox, err := store.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)

	for _, subject := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendItem(inbox, types.ItemData{TypeTag: "IPM.Note", Subject: subject}))
	}

	var got []string
	for pos := 1; pos <= 3; pos++ {
		item, err := inbox.ItemAt(pos)
		require.NoError(t, err)
		got = append(got, item.Subject())
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)

	_, err = inbox.ItemAt(4)
	assert.Error(t, err)
}

func TestMoveWithinStore(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	store := openStore(t, session, filepath.Join(t.TempDir(), "archive.db"))
	inbox, err := store.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	root, err := store.Root()
	require.NoError(t, err)
	archive, err := store.CreateFolder(root, "Archive")
	require.NoError(t, err)

	require.NoError(t, store.AppendItem(inbox, types.ItemData{TypeTag: "IPM.Note", Subject: "keep"}))
	item, err := inbox.ItemAt(1)
	require.NoError(t, err)
	require.NoError(t, item.MoveTo(archive))

	inboxCount, err := inbox.ItemCount()
	require.NoError(t, err)
	assert.Zero(t, inboxCount)
	archiveCount, err := archive.ItemCount()
	require.NoError(t, err)
	assert.Equal(t, 1, archiveCount)
}

func TestMoveAcrossStores(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	dir := t.TempDir()
	src := openStore(t, session, filepath.Join(dir, "src.db"))
	dst := openStore(t, session, filepath.Join(dir, "dst.db"))

	srcInbox, err := src.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	dstInbox, err := dst.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)

	sent := time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)
	require.NoError(t, src.AppendItem(srcInbox, types.ItemData{
		TypeTag:       "IPM.Note",
		Subject:       "crossing",
		SentOn:        sent,
		SenderAddress: "a@example.com",
		Size:          2048,
	}))

	item, err := srcInbox.ItemAt(1)
	require.NoError(t, err)
	require.NoError(t, item.MoveTo(dstInbox))

	srcCount, err := srcInbox.ItemCount()
	require.NoError(t, err)
	assert.Zero(t, srcCount)

	moved, err := dstInbox.ItemAt(1)
	require.NoError(t, err)
	assert.Equal(t, "crossing", moved.Subject())
	assert.True(t, moved.SentOn().Equal(sent))
	assert.Equal(t, "a@example.com", moved.SenderAddress())
	assert.Equal(t, int64(2048), moved.Size())
}

func TestMoveStaleItem(t *testing.T) {
	session := NewSession(newTestLogger(), "")
	defer session.Close()
	store := openStore(t, session, filepath.Join(t.TempDir(), "archive.db"))
	inbox, err := store.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	notes, err := store.DefaultContainer(types.CategoryNote)
	require.NoError(t, err)

	require.NoError(t, store.AppendItem(inbox, types.ItemData{TypeTag: "IPM.Note", Subject: "once"}))
	item, err := inbox.ItemAt(1)
	require.NoError(t, err)
	require.NoError(t, item.MoveTo(notes))

	// The handle now points at a row that left its folder; a second move of
	// the same snapshot still succeeds (the row exists), but a deleted row
	// must fail.
	_, err = store.db.Exec("DELETE FROM items WHERE id = ?", item.(*Item).id)
	require.NoError(t, err)
	err = item.MoveTo(inbox)
	assert.True(t, errors.Is(err, provider.ErrMoveFailed))
}

func TestEngineMergeBetweenFiles(t *testing.T) {
	logger := newTestLogger()
	session := NewSession(logger, "")
	defer session.Close()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.db")
	dstPath := filepath.Join(dir, "dst.db")

	src := openStore(t, session, srcPath)
	srcInbox, err := src.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	seed := []types.ItemData{
		{TypeTag: "IPM.Note", Subject: "mail one", SentOn: start, Size: 100},
		{TypeTag: "IPM.Note", Subject: "mail two", SentOn: start, Size: 200},
		{TypeTag: "IPM.Appointment", Subject: "standup", Start: start, End: start.Add(15 * time.Minute)},
		{TypeTag: "IPM.Contact", FullName: "Ada Lovelace", Email1: "ada@example.com"},
	}
	for _, data := range seed {
		require.NoError(t, src.AppendItem(srcInbox, data))
	}

	opts := config.Options{
		Sources:        []string{srcPath},
		DestPath:       dstPath,
		Scope:          config.ScopeAllFolders,
		Provider:       config.ProviderLocal,
		SkipDuplicates: true,
	}
	summary, err := engine.NewMerger(session, opts, logger, &bytes.Buffer{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Moved)
	assert.Equal(t, 0, summary.SkippedDuplicates)

	// The run closes the handles it opened, so verification re-opens them.
	dst := openStore(t, session, dstPath)
	for cat, want := range map[types.Category]int{
		types.CategoryMail:        2,
		types.CategoryAppointment: 1,
		types.CategoryContact:     1,
	} {
		folder, err := dst.DefaultContainer(cat)
		require.NoError(t, err)
		count, err := folder.ItemCount()
		require.NoError(t, err)
		assert.Equal(t, want, count, "category %s", cat)
	}
	src = openStore(t, session, srcPath)
	srcInbox, err = src.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	srcCount, err := srcInbox.ItemCount()
	require.NoError(t, err)
	assert.Zero(t, srcCount, "source drained")

	// A second source carrying the same items is suppressed entirely.
	src2Path := filepath.Join(dir, "src2.db")
	src2 := openStore(t, session, src2Path)
	src2Inbox, err := src2.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	for _, data := range seed {
		require.NoError(t, src2.AppendItem(src2Inbox, data))
	}
	opts.Sources = []string{src2Path}
	summary2, err := engine.NewMerger(session, opts, logger, &bytes.Buffer{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 0, summary2.Moved)
	assert.Equal(t, 4, summary2.SkippedDuplicates)
}
