package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/storemerge/internal/provider/localstore"
	"github.com/brandon/storemerge/pkg/types"
)

// seedSource creates an archive file holding one inbox item and one item in
// a folder outside the inbox.
func seedSource(t *testing.T, path string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	session := localstore.NewSession(logger, "")
	defer session.Close()

	opened, err := session.OpenStore(path, true)
	require.NoError(t, err)
	store := opened.(*localstore.Store)

	inbox, err := store.DefaultContainer(types.CategoryMail)
	require.NoError(t, err)
	require.NoError(t, store.AppendItem(inbox, types.ItemData{TypeTag: "IPM.Note", Subject: "in scope"}))

	root, err := store.Root()
	require.NoError(t, err)
	archive, err := store.CreateFolder(root, "Archive")
	require.NoError(t, err)
	require.NoError(t, store.AppendItem(archive, types.ItemData{TypeTag: "IPM.Note", Subject: "out of scope"}))
}

func runMerge(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"merge"}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestMergeCommandConfigFileSuppliesScope(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	seedSource(t, src)
	cfg := filepath.Join(dir, "merge.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("scope: inbox\n"), 0644))

	out := runMerge(t,
		"--source", src,
		"--dest", filepath.Join(dir, "dst.db"),
		"--config", cfg,
	)
	assert.Contains(t, out, "moved: 1\n", "config-file scope restricts the merge to the inbox")
}

func TestMergeCommandScopeFlagBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	seedSource(t, src)
	cfg := filepath.Join(dir, "merge.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("scope: inbox\n"), 0644))

	out := runMerge(t,
		"--source", src,
		"--dest", filepath.Join(dir, "dst.db"),
		"--config", cfg,
		"--scope", "all",
	)
	assert.Contains(t, out, "moved: 2\n", "an explicit flag overrides the config file")
}
