package export

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// Sheet names in the workbook.
const (
	SheetShapelets = "Shapelets"
	SheetSites     = "Sites"
)

// maxSheetRows is the Excel row limit, header included.
const maxSheetRows = 1 << 20

// Workbook accumulates shapelets and site summaries into a two-sheet XLSX file.
type Workbook struct {
	file      *xlsx.File
	shapelets *xlsx.Sheet
	sites     *xlsx.Sheet
	opts      CSVOptions
	rows      int
}

// NewWorkbook creates a workbook with header rows on both sheets.
func NewWorkbook(opts CSVOptions) (*Workbook, error) {
	f := xlsx.NewFile()
	shapelets, err := f.AddSheet(SheetShapelets)
	if err != nil {
		return nil, eris.Wrap(err, "export: add shapelets sheet")
	}
	sites, err := f.AddSheet(SheetSites)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sites sheet")
	}
	addStrings(shapelets.AddRow(), ShapeletHeader(opts))
	addStrings(sites.AddRow(), summaryColumns)
	return &Workbook{file: f, shapelets: shapelets, sites: sites, opts: opts}, nil
}

// AddShapelet appends one shapelet row. Numeric columns are written as numbers.
func (wb *Workbook) AddShapelet(r *model.ShapeletRow) error {
	if wb.rows+1 >= maxSheetRows {
		return eris.Errorf("export: %s sheet exceeds %d rows", SheetShapelets, maxSheetRows)
	}
	row := wb.shapelets.AddRow()
	row.AddCell().SetInt64(r.ID)
	row.AddCell().SetString(r.DatasetKey)
	row.AddCell().SetInt64(r.ShapeletID)
	row.AddCell().SetString(r.SiteKey)
	row.AddCell().SetString(optString(r.State))
	row.AddCell().SetString(optString(r.County))
	addOptInt(row, r.SiteNum)
	addOptFloat(row, r.Latitude)
	addOptFloat(row, r.Longitude)
	row.AddCell().SetString(optString(r.ParameterCode))
	row.AddCell().SetInt(r.Year)
	row.AddCell().SetString(r.StartDate.Format(model.DateLayout))
	row.AddCell().SetString(r.EndDate.Format(model.DateLayout))
	row.AddCell().SetInt(r.LengthDays)
	row.AddCell().SetString(optString(r.PatternType))
	row.AddCell().SetString(optString(r.DataType))
	addOptFloat(row, r.Quality)
	if !wb.opts.ExpandValues {
		row.AddCell().SetString(ShapeletRecord(r, wb.opts)[valuesColumn])
		row.AddCell().SetString(optString(r.SourceFile))
	} else {
		row.AddCell().SetString(optString(r.SourceFile))
		for i := range wb.opts.maxExpand() {
			c := row.AddCell()
			if i < len(r.ShapeletValues) {
				setFloat(c, r.ShapeletValues[i])
			}
		}
	}
	wb.rows++
	return nil
}

// AddSites appends one row per site summary.
func (wb *Workbook) AddSites(sums []model.SiteSummary) {
	for _, s := range sums {
		row := wb.sites.AddRow()
		row.AddCell().SetString(s.SiteKey)
		row.AddCell().SetString(s.State)
		row.AddCell().SetString(s.County)
		row.AddCell().SetInt64(s.SiteNum)
		addOptFloat(row, s.Latitude)
		addOptFloat(row, s.Longitude)
		row.AddCell().SetInt64(s.ShapeletCount)
		addOptFloat(row, s.AvgQuality)
		addOptFloat(row, s.MinQuality)
		addOptFloat(row, s.MaxQuality)
		row.AddCell().SetString(s.EarliestDate)
		row.AddCell().SetString(s.LatestDate)
		row.AddCell().SetString(s.Pollutants)
		row.AddCell().SetString(s.Years)
	}
}

// Rows returns the number of shapelet rows added.
func (wb *Workbook) Rows() int {
	return wb.rows
}

// Save writes the workbook to path.
func (wb *Workbook) Save(path string) error {
	return eris.Wrapf(wb.file.Save(path), "export: save workbook %s", path)
}

// WriteXLSX writes shapelets and site summaries to a two-sheet workbook at path.
func WriteXLSX(path string, rows []*model.ShapeletRow, sums []model.SiteSummary, opts CSVOptions) error {
	wb, err := NewWorkbook(opts)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := wb.AddShapelet(r); err != nil {
			return err
		}
	}
	wb.AddSites(sums)
	return wb.Save(path)
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addOptInt(row *xlsx.Row, n *int64) {
	c := row.AddCell()
	if n != nil {
		c.SetInt64(*n)
	}
}

func addOptFloat(row *xlsx.Row, f *float64) {
	c := row.AddCell()
	if f != nil {
		setFloat(c, *f)
	}
}

// setFloat leaves non-finite values blank; spreadsheets have no NaN.
func setFloat(c *xlsx.Cell, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	c.SetFloat(f)
}
