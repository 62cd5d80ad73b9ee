package terralens

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportFilenameIsDeterministic(t *testing.T) {
	cases := []struct {
		region string
		format ExportFormat
		want   string
	}{
		{"Central Valley", FormatPNG, "central_valley_2025-06-01_2025-08-01.png"},
		{"Fresno County, CA", FormatPDF, "fresno_county_ca_2025-06-01_2025-08-01.pdf"},
		{"Río Negro", FormatSVG, "r_o_negro_2025-06-01_2025-08-01.svg"},
		{"  padded  ", FormatGeoTIFF, "padded_2025-06-01_2025-08-01.tiff"},
	}
	for _, tc := range cases {
		got := ExportFilename(tc.region, "2025-06-01", "2025-08-01", tc.format)
		assert.Equal(t, tc.want, got, "region %q", tc.region)
	}
}

func TestExportFilenameGeoTIFFUsesTiffExtension(t *testing.T) {
	got := ExportFilename("x", "2025-01-01", "2025-02-01", FormatGeoTIFF)
	assert.Equal(t, "x_2025-01-01_2025-02-01.tiff", got)
}

func TestSaveExportsWritesAllFormats(t *testing.T) {
	var mu sync.Mutex
	requested := map[ExportFormat]bool{}
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /visualization/export": func(w http.ResponseWriter, r *http.Request) {
			var req ExportRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "bad body"})
				return
			}
			mu.Lock()
			requested[req.Format] = true
			mu.Unlock()
			_, _ = w.Write([]byte("payload-" + string(req.Format)))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	dir := t.TempDir()

	formats := []ExportFormat{FormatPNG, FormatPDF, FormatGeoTIFF}
	paths, err := SaveExports(context.Background(), client, dir, "job-1", formats, nil,
		"Central Valley", "2025-06-01", "2025-08-01")
	require.NoError(t, err)
	require.Len(t, paths, 3)

	assert.Equal(t, filepath.Join(dir, "central_valley_2025-06-01_2025-08-01.png"), paths[0])
	for i, format := range formats {
		payload, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, "payload-"+string(format), string(payload))
	}

	mu.Lock()
	got := make([]string, 0, len(requested))
	for f := range requested {
		got = append(got, string(f))
	}
	mu.Unlock()
	sort.Strings(got)
	assert.Equal(t, []string{"geotiff", "pdf", "png"}, got)
}

func TestSaveExportsFirstFailureAborts(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /visualization/export": func(w http.ResponseWriter, r *http.Request) {
			var req ExportRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Format == FormatPDF {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "renderer crashed"})
				return
			}
			_, _ = w.Write([]byte("ok"))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := SaveExports(context.Background(), client, t.TempDir(), "job-1",
		[]ExportFormat{FormatPNG, FormatPDF}, nil, "x", "2025-06-01", "2025-08-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf")
}

func TestSaveExportPassesOptions(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /visualization/export": func(w http.ResponseWriter, r *http.Request) {
			var req ExportRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Resolution != 600 || req.PaperSize != "A3" || req.IncludeLegend {
				writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "options not forwarded"})
				return
			}
			_, _ = w.Write([]byte("ok"))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	paths, err := SaveExports(context.Background(), client, t.TempDir(), "job-1",
		[]ExportFormat{FormatPNG},
		&ExportOptions{Resolution: 600, IncludeLegend: false, PaperSize: "A3"},
		"x", "2025-06-01", "2025-08-01")
	require.NoError(t, err)
	require.Len(t, paths, 1)
}
