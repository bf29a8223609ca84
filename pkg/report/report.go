// Package report renders extraction results for people and downstream tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/jsonutil"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// Format selects an output rendering.
type Format string

const (
	FormatSummary Format = "summary"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
)

// ParseFormat accepts summary, table, json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "summary", "table":
		return FormatSummary, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want summary, json or yaml)", s)
}

// ToRecord converts a result into a plain key/value tree keyed by the JSON
// field names.
func ToRecord(result *models.ExtractionResult) (map[string]any, error) {
	if result == nil {
		return nil, fmt.Errorf("nil extraction result")
	}
	return jsonutil.ToMap(result)
}

// Write renders result to w in the given format.
func Write(w io.Writer, result *models.ExtractionResult, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatYAML:
		return WriteYAML(w, result)
	default:
		return WriteSummary(w, result)
	}
}

func WriteJSON(w io.Writer, result *models.ExtractionResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func WriteYAML(w io.Writer, result *models.ExtractionResult) error {
	record, err := ToRecord(result)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteSummary prints the run header, a facet table and entity counts.
func WriteSummary(w io.Writer, result *models.ExtractionResult) error {
	if result == nil {
		return fmt.Errorf("nil extraction result")
	}

	src := result.Source
	_, _ = fmt.Fprintf(w, "Run %s  %s %s  status: %s\n", result.RunID, src.Kind, sourceLabel(src), strings.ToUpper(string(result.Status)))
	_, _ = fmt.Fprintf(w, "Extracted %s  pipeline %s  sampling %s/%d seed %d\n",
		result.ExtractedAt.Format(time.RFC3339), result.PipelineVersion,
		result.Sampling.Mode, result.Sampling.SampleSize, result.Sampling.Seed)
	if result.Schema != nil && result.Schema.Depth < models.DepthConstraints {
		_, _ = fmt.Fprintf(w, "Introspection stopped after %s\n", result.Schema.Depth)
	}
	_, _ = fmt.Fprintln(w)

	facets := table.NewWriter()
	facets.SetOutputMirror(w)
	facets.SetStyle(table.StyleLight)
	facets.AppendHeader(table.Row{"Facet", "State", "Attempts", "Duration", "Reason"})
	for _, f := range models.Facets {
		st := result.Facets[f]
		facets.AppendRow(table.Row{f, st.State, st.Attempts, st.Duration.Round(time.Millisecond), st.Reason})
	}
	facets.Render()
	_, _ = fmt.Fprintln(w)

	counts := table.NewWriter()
	counts.SetOutputMirror(w)
	counts.SetStyle(table.StyleLight)
	counts.AppendHeader(table.Row{"Entity", "Count"})
	for _, c := range countRows(result) {
		counts.AppendRow(table.Row{c.label, c.n})
	}
	counts.Render()

	if len(result.Warnings) > 0 {
		_, _ = fmt.Fprintf(w, "\n%d warning(s):\n", len(result.Warnings))
		for _, msg := range result.Warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
	return nil
}

// WriteKinds prints the source kind catalogue.
func WriteKinds(w io.Writer, kinds []datasource.AdapterInfo) {
	sorted := append([]datasource.AdapterInfo(nil), kinds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Kind < sorted[j].Kind })

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Name", "Status", "Default Port", "Description"})
	for _, k := range sorted {
		port := ""
		if k.DefaultPort > 0 {
			port = fmt.Sprintf("%d", k.DefaultPort)
		}
		t.AppendRow(table.Row{k.Kind, k.DisplayName, k.Status, port, k.Description})
	}
	t.Render()
}

func sourceLabel(d models.ConnectionDescriptor) string {
	if d.Host == "" {
		return d.Database
	}
	if d.Port > 0 {
		return fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.Database)
	}
	return d.Host + "/" + d.Database
}

type countRow struct {
	label string
	n     int
}

func countRows(result *models.ExtractionResult) []countRow {
	var schemas, views int
	if result.Schema != nil {
		for _, db := range result.Schema.Databases {
			schemas += len(db.Schemas)
		}
	}
	tables := result.Schema.Tables()
	for _, t := range tables {
		if t.IsView() {
			views++
		}
	}

	byKind := make(map[models.RelationKind]int)
	for _, e := range result.Lineage {
		byKind[e.Kind]++
	}

	var databases int
	if result.Schema != nil {
		databases = len(result.Schema.Databases)
	}

	rows := []countRow{
		{"databases", databases},
		{"schemas", schemas},
		{"tables", len(tables) - views},
		{"views", views},
		{"columns", result.Schema.ColumnCount()},
		{"profiled columns", len(result.Quality)},
		{"profiling issues", len(result.QualityIssues)},
		{"context annotations", len(result.Context)},
		{"lineage: foreign key", byKind[models.RelationForeignKey]},
		{"lineage: naming match", byKind[models.RelationNamingMatch]},
		{"lineage: view dependency", byKind[models.RelationViewDependency]},
	}
	return rows
}
