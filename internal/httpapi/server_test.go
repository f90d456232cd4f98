package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/bigcty"
	"github.com/andreiashu/bigcty/internal/config"
)

type stubSource struct {
	release   bigcty.Release
	latestErr error
	data      []byte
}

func (s *stubSource) Latest(context.Context) (bigcty.Release, error) {
	return s.release, s.latestErr
}

func (s *stubSource) Fetch(context.Context, bigcty.Release) ([]byte, error) {
	return s.data, nil
}

func newTestServer(t *testing.T, src bigcty.ReleaseSource) (*Server, *bytes.Buffer) {
	t.Helper()
	doc, err := bigcty.ImportFile(filepath.Join("..", "..", "testdata", "cty.dat"))
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	u := bigcty.NewUpdater(src, bigcty.NewStore(doc), bigcty.WithLogger(logger))
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, u, logger), &logs
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetVersion(t *testing.T) {
	s, _ := newTestServer(t, &stubSource{})

	rec := do(t, s, http.MethodGet, "/v1/version")
	require.Equal(t, http.StatusOK, rec.Code)

	var body VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, VersionResponse{Version: "20240315", Formatted: "2024-03-15", Entries: 107}, body)
}

func TestGetPrefix(t *testing.T) {
	s, logs := newTestServer(t, &stubSource{})

	tests := []struct {
		target string
		pos    Position
		want   PrefixResponse
	}{
		{"/v1/prefixes/KL7", Position{Lat: 61.40, Lng: -148.87}, PrefixResponse{
			Prefix: "KL7", Entity: "United States", CQZone: 1, ITUZone: 1, Continent: "NA",
			Latitude: 61.40, Longitude: 148.87, UTCOffset: -9, PrefixLength: 1, PrimaryPrefix: "K",
		}},
		{"/v1/prefixes/hb9xyz/p", Position{Lat: 46.87, Lng: 8.12}, PrefixResponse{
			Prefix: "HB9XYZ/P", Entity: "Switzerland", CQZone: 14, ITUZone: 28, Continent: "EU",
			Latitude: 46.87, Longitude: -8.12, UTCOffset: 1, PrefixLength: 2, PrimaryPrefix: "HB", ExactMatch: true,
		}},
		{"/v1/prefixes/GM/s", Position{Lat: 60.50, Lng: -1.50}, PrefixResponse{
			Prefix: "GM/s", Entity: "Shetland Islands (not DXCC)", CQZone: 14, ITUZone: 27, Continent: "EU",
			Latitude: 60.50, Longitude: 1.50, UTCOffset: 0, PrefixLength: 4, PrimaryPrefix: "GM/s",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body PrefixResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.InDelta(t, tt.pos.Lat, body.Position.Lat, 1e-9)
			assert.InDelta(t, tt.pos.Lng, body.Position.Lng, 1e-9)
			body.Position = Position{}
			assert.Equal(t, tt.want, body)
		})
	}
	assert.Contains(t, logs.String(), `"msg":"request"`)
}

func TestGetPrefixNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubSource{})

	rec := do(t, s, http.MethodGet, "/v1/prefixes/HB01")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body NotFoundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "prefix not found", body.Message)
	require.NotEmpty(t, body.Suggestions)
	assert.Equal(t, "HB0", body.Suggestions[0])
	assert.LessOrEqual(t, len(body.Suggestions), maxSuggestions)

	rec = do(t, s, http.MethodGet, "/v1/prefixes/QQQQQQQQ")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{}, body.Suggestions)
}

func TestPostUpdate(t *testing.T) {
	t.Run("unchanged", func(t *testing.T) {
		s, _ := newTestServer(t, &stubSource{release: bigcty.Release{Version: "20240315"}})

		rec := do(t, s, http.MethodPost, "/v1/update")
		require.Equal(t, http.StatusOK, rec.Code)

		var body UpdateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, UpdateResponse{Updated: false, Version: "20240315"}, body)
	})

	t.Run("updated", func(t *testing.T) {
		src := &stubSource{
			release: bigcty.Release{Version: "20240401"},
			data:    []byte("Monaco: 14: 27: EU: 43.73: -7.40: -1.0: 3A:\n    3A;\n"),
		}
		s, _ := newTestServer(t, src)

		rec := do(t, s, http.MethodPost, "/v1/update")
		require.Equal(t, http.StatusOK, rec.Code)

		var body UpdateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, UpdateResponse{Updated: true, Version: "20240401"}, body)

		rec = do(t, s, http.MethodGet, "/v1/prefixes/DL")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("retrieval error", func(t *testing.T) {
		s, _ := newTestServer(t, &stubSource{latestErr: errors.New("connection refused")})

		rec := do(t, s, http.MethodPost, "/v1/update")
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = do(t, s, http.MethodGet, "/v1/prefixes/DL")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("format error", func(t *testing.T) {
		src := &stubSource{
			release: bigcty.Release{Version: "20240401"},
			data:    []byte("Monaco: fourteen: 27: EU: 43.73: -7.40: -1.0: 3A:\n"),
		}
		s, _ := newTestServer(t, src)

		rec := do(t, s, http.MethodPost, "/v1/update")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, &stubSource{})
	rec := do(t, s, http.MethodGet, "/v1/update")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
