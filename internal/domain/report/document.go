// Package report defines the document model handed to rendering backends:
// ordered sections of tables, chart specs, and narrative. The model is
// fully declarative; nothing in it knows about pixels, fonts, or pages
// beyond row-count pagination hints.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Document is one assembled report. It is constructed fresh per run and
// never mutated after handoff.
type Document struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	RangeStart  values.Month `json:"range_start"`
	RangeEnd    values.Month `json:"range_end"`
	GeneratedAt time.Time    `json:"generated_at"`
	Sections    []Section    `json:"sections"`

	// Overview bookkeeping surfaced to the reader.
	TotalTickets int  `json:"total_tickets"`
	SkippedRows  int  `json:"skipped_rows"`
	EmptyRange   bool `json:"empty_range"`
}

// SectionKind identifies the fixed report sections in their mandated order
type SectionKind int

const (
	SectionOverview SectionKind = iota
	SectionTypeBreakdown
	SectionTeamAnalysis
	SectionEngineerAnalysis
	SectionExceptions
	SectionKPITrends
	SectionTopCatalog
)

func (k SectionKind) String() string {
	switch k {
	case SectionOverview:
		return "overview"
	case SectionTypeBreakdown:
		return "type_breakdown"
	case SectionTeamAnalysis:
		return "team_analysis"
	case SectionEngineerAnalysis:
		return "engineer_analysis"
	case SectionExceptions:
		return "exceptions"
	case SectionKPITrends:
		return "kpi_trends"
	case SectionTopCatalog:
		return "top_catalog"
	default:
		return "unknown"
	}
}

// Section is one ordered report block
type Section struct {
	Kind      SectionKind `json:"kind"`
	Title     string      `json:"title"`
	Narrative string      `json:"narrative,omitempty"`
	Tables    []Table     `json:"tables,omitempty"`
	Charts    []ChartSpec `json:"charts,omitempty"`
}

// Column names and labels one table column
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// CellKind types a cell so the renderer can align and format consistently
type CellKind int

const (
	CellText CellKind = iota
	CellInt
	CellPercent
	CellDuration
	CellTime
	CellMonth
)

func (k CellKind) String() string {
	switch k {
	case CellInt:
		return "int"
	case CellPercent:
		return "percent"
	case CellDuration:
		return "duration"
	case CellTime:
		return "time"
	case CellMonth:
		return "month"
	default:
		return "text"
	}
}

// Cell is one table value. Text is always the fully formed display string;
// Number carries the raw value for kinds that have one, so renderers can
// right-align or re-scale without re-parsing text.
type Cell struct {
	Kind   CellKind `json:"kind"`
	Text   string   `json:"text"`
	Number *float64 `json:"number,omitempty"`
}

// Row is one ordered sequence of cells matching the table columns
type Row struct {
	Cells []Cell `json:"cells"`
}

// PageHint estimates how the rendering backend should split a long table
type PageHint struct {
	RowsPerPage    int `json:"rows_per_page"`
	EstimatedPages int `json:"estimated_pages"`
}

// Table is an ordered grid with named, typed cells
type Table struct {
	Title    string   `json:"title,omitempty"`
	Columns  []Column `json:"columns"`
	Rows     []Row    `json:"rows"`
	PageHint PageHint `json:"page_hint"`
}

// ChartKind selects the chart family
type ChartKind int

const (
	ChartPie ChartKind = iota
	ChartLine
	ChartBar
)

func (k ChartKind) String() string {
	switch k {
	case ChartPie:
		return "pie"
	case ChartLine:
		return "line"
	case ChartBar:
		return "bar"
	default:
		return "unknown"
	}
}

// Point is one (label, value) pair within a series
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// NoData marks gap-filled points so renderers can show them hollow.
	NoData bool `json:"no_data,omitempty"`
}

// Series is one named data line or slice group
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
	// StrokeWidth lets the primary series render heavier than the rest.
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// Axis describes value-axis bounds and tick formatting
type Axis struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Step       float64 `json:"step"`
	TickSuffix string  `json:"tick_suffix,omitempty"`
}

// ChartSpec is a declarative chart description; the rendering backend owns
// all drawing
type ChartSpec struct {
	Kind   ChartKind `json:"kind"`
	Title  string    `json:"title"`
	Series []Series  `json:"series"`
	Colors []string  `json:"colors,omitempty"`
	XAxis  []string  `json:"x_axis,omitempty"`
	YAxis  *Axis     `json:"y_axis,omitempty"`
}

// NewDocument starts an empty document for the given range
func NewDocument(title string, start, end values.Month, generatedAt time.Time) *Document {
	return &Document{
		ID:          uuid.New(),
		Title:       title,
		RangeStart:  start,
		RangeEnd:    end,
		GeneratedAt: generatedAt,
	}
}

// AddSection appends a section preserving mandated order
func (d *Document) AddSection(s Section) {
	d.Sections = append(d.Sections, s)
}

// SectionByKind returns the first section of the given kind, nil when the
// document has none
func (d *Document) SectionByKind(kind SectionKind) *Section {
	for i := range d.Sections {
		if d.Sections[i].Kind == kind {
			return &d.Sections[i]
		}
	}
	return nil
}

// NewTable creates a table with the given columns
func NewTable(title string, columns ...Column) Table {
	return Table{Title: title, Columns: columns}
}

// AddRow appends a row; the cell count must match the column count
func (t *Table) AddRow(cells ...Cell) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table %q has %d columns", len(cells), t.Title, len(t.Columns))
	}
	t.Rows = append(t.Rows, Row{Cells: cells})
	return nil
}

// MustAddRow appends a row and panics on arity mismatch (composer bug)
func (t *Table) MustAddRow(cells ...Cell) {
	if err := t.AddRow(cells...); err != nil {
		panic(err)
	}
}

// Paginate fills the page hint from an estimated rows-per-page capacity
func (t *Table) Paginate(rowsPerPage int) {
	if rowsPerPage <= 0 {
		rowsPerPage = 1
	}
	pages := (len(t.Rows) + rowsPerPage - 1) / rowsPerPage
	if pages == 0 {
		pages = 1
	}
	t.PageHint = PageHint{RowsPerPage: rowsPerPage, EstimatedPages: pages}
}

// TextCell builds a plain text cell
func TextCell(text string) Cell {
	return Cell{Kind: CellText, Text: text}
}

// IntCell builds an integer cell
func IntCell(v int) Cell {
	f := float64(v)
	return Cell{Kind: CellInt, Text: fmt.Sprintf("%d", v), Number: &f}
}

// PercentCell builds a rate cell; undefined rates display as their N/A form
func PercentCell(p values.Percent) Cell {
	if !p.Valid() {
		return Cell{Kind: CellPercent, Text: p.String()}
	}
	f := p.Float64()
	return Cell{Kind: CellPercent, Text: p.String(), Number: &f}
}

// DurationCell builds a duration cell displayed in whole minutes; a nil
// duration displays as N/A
func DurationCell(d *time.Duration) Cell {
	if d == nil {
		return Cell{Kind: CellDuration, Text: "N/A"}
	}
	mins := d.Minutes()
	return Cell{Kind: CellDuration, Text: fmt.Sprintf("%.0f min", mins), Number: &mins}
}

// TimeCell builds a timestamp cell; nil displays as empty
func TimeCell(at *time.Time) Cell {
	if at == nil {
		return Cell{Kind: CellTime, Text: ""}
	}
	return Cell{Kind: CellTime, Text: at.Format("2006-01-02 15:04")}
}

// MonthCell builds a month-bucket cell
func MonthCell(m values.Month) Cell {
	return Cell{Kind: CellMonth, Text: m.String()}
}

// NoDataTable is the stable placeholder emitted when a section has no
// rows, keeping report structure identical across runs
func NoDataTable(title string) Table {
	t := NewTable(title, Column{Key: "notice", Label: "Notice"})
	t.MustAddRow(TextCell("no data in range"))
	t.Paginate(1)
	return t
}
