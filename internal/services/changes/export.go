package changes

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/venator/internal/models"
)

// Export formats for change history.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// ExportHistory serializes a URL's change records in the requested format,
// newest first.
func (t *Tracker) ExportHistory(ctx context.Context, url, format string, limit int) ([]byte, error) {
	records, err := t.storage.ListChanges(ctx, url, limit)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case FormatJSON, "":
		return json.MarshalIndent(records, "", "  ")
	case FormatYAML:
		return yaml.Marshal(records)
	case FormatCSV:
		return exportCSV(records)
	default:
		return nil, models.NewError(models.KindInvalidArgument, "unsupported export format %q", format)
	}
}

func exportCSV(records []*models.ChangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"computed_at", "url", "from_snapshot", "to_snapshot", "score", "similarity", "significance", "sections_changed"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := []string{
			rec.ComputedAt.Format(time.RFC3339),
			rec.URL,
			rec.FromSnapshot,
			rec.ToSnapshot,
			fmt.Sprintf("%.4f", rec.Score),
			fmt.Sprintf("%.4f", rec.Similarity),
			string(rec.Significance),
			strings.Join(rec.SectionsChanged, ";"),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
