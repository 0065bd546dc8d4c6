// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
)

// Format is the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for anything other than csv or json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts "csv", "json" or "" (csv).
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Options configures filtering. Zero values disable a filter.
type Options struct {
	Format    Format
	StartTime time.Time
	EndTime   time.Time
	Kind      string // swap, approve, ...
	Status    string // pending, confirmed, failed
	// SkipSimulated drops demo-mode entries.
	SkipSimulated bool
}

// Summary aggregates the exported entries.
type Summary struct {
	Total     int            `json:"total"`
	Confirmed int            `json:"confirmed"`
	Failed    int            `json:"failed"`
	Pending   int            `json:"pending"`
	Simulated int            `json:"simulated"`
	ByKind    map[string]int `json:"byKind"`
	Tokens    int            `json:"uniqueTokens"`
	StartDate time.Time      `json:"startDate,omitempty"`
	EndDate   time.Time      `json:"endDate,omitempty"`
}

var csvHeaders = []string{
	"time", "hash", "wallet", "kind", "token_in", "token_out",
	"amount_in", "amount_out", "status", "simulated", "error",
}

// ActivityExporter пишет журнал операций в CSV или JSON.
type ActivityExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewActivityExporter(logger *zap.Logger) *ActivityExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityExporter{logger: logger.Named("export"), now: time.Now}
}

// Write filters entries, sorts them oldest first and writes them to w.
// It returns the number of exported entries.
func (e *ActivityExporter) Write(w io.Writer, entries []*models.Activity, opts Options) (int, error) {
	filtered := Filter(entries, opts)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	var err error
	switch opts.Format {
	case "", FormatCSV:
		err = writeCSV(w, filtered)
	case FormatJSON:
		err = e.writeJSON(w, filtered)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
	if err != nil {
		return 0, err
	}

	e.logger.Debug("Activity exported",
		zap.Int("count", len(filtered)),
		zap.String("format", string(opts.Format)))
	return len(filtered), nil
}

// Filter applies opts to entries without reordering them.
func Filter(entries []*models.Activity, opts Options) []*models.Activity {
	var out []*models.Activity
	for _, a := range entries {
		if !opts.StartTime.IsZero() && a.CreatedAt.Before(opts.StartTime) {
			continue
		}
		if !opts.EndTime.IsZero() && a.CreatedAt.After(opts.EndTime) {
			continue
		}
		if opts.Kind != "" && a.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.SkipSimulated && a.Simulated {
			continue
		}
		out = append(out, a)
	}
	return out
}

func writeCSV(w io.Writer, entries []*models.Activity) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, a := range entries {
		row := []string{
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.Hash, a.Wallet, a.Kind, a.TokenIn, a.TokenOut,
			a.AmountIn, a.AmountOut, a.Status,
			strconv.FormatBool(a.Simulated), a.Error,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write activity %s: %w", a.Hash, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (e *ActivityExporter) writeJSON(w io.Writer, entries []*models.Activity) error {
	if entries == nil {
		entries = []*models.Activity{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	data := struct {
		ExportTime time.Time          `json:"exportTime"`
		Summary    Summary            `json:"summary"`
		Activity   []*models.Activity `json:"activity"`
	}{
		ExportTime: e.now().UTC(),
		Summary:    Summarize(entries),
		Activity:   entries,
	}
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summarize counts entries by status and kind. entries must be sorted oldest first
// for StartDate/EndDate to be meaningful.
func Summarize(entries []*models.Activity) Summary {
	s := Summary{Total: len(entries), ByKind: make(map[string]int)}
	if len(entries) == 0 {
		return s
	}
	s.StartDate = entries[0].CreatedAt
	s.EndDate = entries[len(entries)-1].CreatedAt

	tokens := make(map[string]struct{})
	for _, a := range entries {
		switch a.Status {
		case models.StatusConfirmed:
			s.Confirmed++
		case models.StatusFailed:
			s.Failed++
		case models.StatusPending:
			s.Pending++
		}
		if a.Simulated {
			s.Simulated++
		}
		s.ByKind[a.Kind]++
		for _, t := range []string{a.TokenIn, a.TokenOut} {
			if t != "" {
				tokens[t] = struct{}{}
			}
		}
	}
	s.Tokens = len(tokens)
	return s
}
