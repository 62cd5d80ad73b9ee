package terralens

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ExportOptions are the optional rendering knobs for an export.
type ExportOptions struct {
	Resolution    int
	IncludeLegend bool
	PaperSize     string
}

// extensions maps export formats to file extensions. GeoTIFF uses the plain
// .tiff extension so downstream GIS tools recognise the file.
var extensions = map[ExportFormat]string{
	FormatPNG:     ".png",
	FormatPDF:     ".pdf",
	FormatSVG:     ".svg",
	FormatGeoTIFF: ".tiff",
}

// ExportFilename builds the deterministic download name for an export:
// <region>_<start>_<end>.<ext>, with the region lowercased and unsafe
// characters collapsed to underscores.
func ExportFilename(region, startDate, endDate string, format ExportFormat) string {
	ext, ok := extensions[format]
	if !ok {
		ext = "." + string(format)
	}
	return fmt.Sprintf("%s_%s_%s%s", sanitizeRegion(region), startDate, endDate, ext)
}

// sanitizeRegion makes a region name filesystem-safe. Runs of non-alphanumeric
// characters become a single underscore; leading and trailing ones are
// trimmed.
func sanitizeRegion(region string) string {
	var b strings.Builder
	b.Grow(len(region))
	prevUnderscore := false
	for _, r := range strings.ToLower(region) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// SaveExport renders the job in one format and writes it under dir with the
// deterministic filename. Returns the written path.
func SaveExport(ctx context.Context, client *Client, dir string, req ExportRequest, region, startDate, endDate string) (string, error) {
	payload, err := client.Export(ctx, req)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ExportFilename(region, startDate, endDate, req.Format))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("terralens: write export %s: %w", path, err)
	}
	return path, nil
}

// SaveExports renders a completed job in every requested format concurrently
// and writes each under dir. Exports are independent server-side renderings,
// so they parallelise cleanly; the first failure cancels the rest. Returns
// the written paths in format order.
func SaveExports(ctx context.Context, client *Client, dir string, jobID string, formats []ExportFormat, opts *ExportOptions, region, startDate, endDate string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("terralens: create export dir: %w", err)
	}

	paths := make([]string, len(formats))
	g, ctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			req := ExportRequest{JobID: jobID, Format: format, IncludeLegend: true}
			if opts != nil {
				req.Resolution = opts.Resolution
				req.IncludeLegend = opts.IncludeLegend
				req.PaperSize = opts.PaperSize
			}
			path, err := SaveExport(ctx, client, dir, req, region, startDate, endDate)
			if err != nil {
				return fmt.Errorf("export %s: %w", format, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
