package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/bigcty"
	"github.com/andreiashu/bigcty/internal/config"
)

var fixturePath = filepath.Join("..", "..", "testdata", "cty.dat")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Feed: config.FeedConfig{
			URL:         "http://127.0.0.1:1/feed/",
			DownloadURL: "http://127.0.0.1:1/bigcty-%s.zip",
			UserAgent:   "bigcty-test",
			Timeout:     5 * time.Second,
		},
		Store:    config.StoreConfig{Path: filepath.Join(dir, "cty.json")},
		Database: config.DatabaseConfig{Dialect: "sqlite", DSN: filepath.Join(dir, "cty.db")},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunImportAndLookup(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, discard(), "import", []string{fixturePath}, &out))
	assert.Contains(t, out.String(), "Imported 107 prefixes (datestamp 2024-03-15)")

	out.Reset()
	require.NoError(t, run(ctx, cfg, discard(), "lookup", []string{"KL7", "II0GDF/9"}, &out))
	assert.Contains(t, out.String(), "United States")
	assert.Contains(t, out.String(), "Italy")

	out.Reset()
	err := run(ctx, cfg, discard(), "lookup", []string{"DL", "HB01"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 prefixes not found")
	assert.Contains(t, out.String(), "did you mean HB0?")
}

func TestRunValidate(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	require.NoError(t, run(ctx, cfg, discard(), "import", []string{fixturePath}, io.Discard))

	err := run(ctx, cfg, discard(), "validate", nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry count too low")
}

func TestRunExportDB(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	require.NoError(t, run(ctx, cfg, discard(), "import", []string{fixturePath}, io.Discard))

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, discard(), "export-db", nil, &out))
	assert.Equal(t, "Exported 107 prefixes to sqlite\n", out.String())
}

func TestRunUpdate(t *testing.T) {
	dat, err := os.ReadFile(fixturePath)
	require.NoError(t, err)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("cty.dat")
	require.NoError(t, err)
	_, err = w.Write(dat)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mux := http.NewServeMux()
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`+
			`<item><title>Big CTY</title><link>http://www.country-files.com/big-cty-15-march-2024/</link></item>`+
			`</channel></rss>`)
	})
	mux.HandleFunc("/bigcty-20240315.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive.Bytes())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Feed.URL = srv.URL + "/feed/"
	cfg.Feed.DownloadURL = srv.URL + "/bigcty-%s.zip"
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, discard(), "update", nil, &out))
	assert.Equal(t, "Updated: true\nDatestamp: 2024-03-15\nVersion Entity: Not present, data possibly corrupted.\n", out.String())

	s, err := bigcty.LoadFile(cfg.Store.Path)
	require.NoError(t, err)
	assert.Equal(t, 107, s.Len())

	out.Reset()
	require.NoError(t, run(ctx, cfg, discard(), "update", nil, &out))
	assert.Contains(t, out.String(), "Updated: false")
}

func TestRunUpdateRetrievalError(t *testing.T) {
	cfg := testConfig(t)
	err := run(context.Background(), cfg, discard(), "update", nil, io.Discard)
	assert.ErrorIs(t, err, bigcty.ErrRetrieval)

	_, statErr := os.Stat(cfg.Store.Path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunUsageErrors(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	assert.Error(t, run(ctx, cfg, discard(), "import", nil, io.Discard))
	assert.Error(t, run(ctx, cfg, discard(), "lookup", nil, io.Discard))

	err := run(ctx, cfg, discard(), "frobnicate", nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
}
