package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	opts := Defaults()
	opts.Sources = []string{"a.db"}
	opts.DestPath = "dest.db"
	return opts
}

func TestDefaults(t *testing.T) {
	opts := Defaults()
	assert.Equal(t, ScopeAllFolders, opts.Scope)
	assert.Equal(t, ProviderLocal, opts.Provider)
	assert.Equal(t, 500, opts.ReclaimEvery)
	assert.Equal(t, 1000, opts.MonitorEvery)
	assert.Equal(t, 100, opts.ProgressEvery)
	assert.False(t, opts.DryRun)
	assert.False(t, opts.SkipDuplicates)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"comma joined", []string{"a.db,b.db"}, []string{"a.db", "b.db"}},
		{"repeated flag", []string{"a.db", "b.db"}, []string{"a.db", "b.db"}},
		{"whitespace trimmed", []string{" a.db , b.db "}, []string{"a.db", "b.db"}},
		{"duplicates dropped keeping first order", []string{"b.db", "a.db,b.db", "a.db"}, []string{"b.db", "a.db"}},
		{"empty entries dropped", []string{"", "a.db,,", ","}, []string{"a.db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Sources: tt.in}
			opts.Normalize()
			assert.Equal(t, tt.want, opts.Sources)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"valid", func(o *Options) {}, false},
		{"valid with default dest", func(o *Options) { o.DestPath = ""; o.UseDefaultDest = true }, false},
		{"no sources", func(o *Options) { o.Sources = nil }, true},
		{"no destination", func(o *Options) { o.DestPath = "" }, true},
		{"dest and default dest together", func(o *Options) { o.UseDefaultDest = true }, true},
		{"bad scope", func(o *Options) { o.Scope = "folders" }, true},
		{"bad provider", func(o *Options) { o.Provider = "exchange" }, true},
		{"negative reclaim cadence", func(o *Options) { o.ReclaimEvery = -1 }, true},
		{"negative monitor cadence", func(o *Options) { o.MonitorEvery = -1 }, true},
		{"negative progress cadence", func(o *Options) { o.ProgressEvery = -1 }, true},
		{"zero cadences disable the features", func(o *Options) {
			o.ReclaimEvery, o.MonitorEvery, o.ProgressEvery = 0, 0, 0
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - old1.db
  - old2.db
dest: main.db
scope: inbox
skip_duplicates: true
reclaim_every: 250
`), 0644))

	opts := Defaults()
	require.NoError(t, opts.LoadFile(path))

	assert.Equal(t, []string{"old1.db", "old2.db"}, opts.Sources)
	assert.Equal(t, "main.db", opts.DestPath)
	assert.Equal(t, ScopeInbox, opts.Scope)
	assert.True(t, opts.SkipDuplicates)
	assert.Equal(t, 250, opts.ReclaimEvery)
	assert.Equal(t, 100, opts.ProgressEvery, "unset keys keep their defaults")
}

func TestLoadFileErrors(t *testing.T) {
	opts := Defaults()
	assert.Error(t, opts.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sources: {not a list"), 0644))
	assert.Error(t, opts.LoadFile(bad))
}
