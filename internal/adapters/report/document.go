package report

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/internal/domain/status"
)

// SheetName is the only sheet of a daily log document.
const SheetName = "Daily Log"

// ContentTypeXLSX is the media type of a daily log document.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ContentTypePNG is the media type of a raster.
const ContentTypePNG = "image/png"

// Document lays out a daily log as a one-page workbook: the report header,
// the timeline picture scaled to pageWidth and the per-status totals.
type Document struct {
	Model  render.Model
	Report model.DailyReport
	Raster []byte
	// RasterWidth is the pixel width of Raster.
	RasterWidth int
	PageWidth   int
}

// Scale returns the factor that fits the raster to the page width.
func (d Document) Scale() float64 {
	if d.RasterWidth <= 0 || d.PageWidth <= 0 {
		return 1
	}
	return float64(d.PageWidth) / float64(d.RasterWidth)
}

// Encode writes the workbook.
func (d Document) Encode() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	w := &sheetWriter{f: f, bold: bold}
	w.title(d.title())
	w.pair("Date", d.date())
	w.pair("Driver", d.Report.DriverName)
	w.pair("Vehicle", d.Report.VehicleLicenseNumber)
	w.pair("From", d.Report.From)
	w.pair("To", d.Report.To)
	w.pair("Carrier", d.Report.NameOfCarriers)
	w.pair("Main office", d.Report.MainOfficeAddress)
	w.pair("Home terminal", d.Report.HomeTerminalAddress)
	w.pair("Total miles", strconv.FormatFloat(d.Report.TotalMiles, 'f', 1, 64))
	w.pair("Cumulative mileage", strconv.FormatFloat(d.Report.CumulativeMileage, 'f', 1, 64))
	w.skip()

	pictureRow := w.row
	if len(d.Raster) > 0 {
		scale := d.Scale()
		if err := f.AddPictureFromBytes(SheetName, cell(1, pictureRow), &excelize.Picture{
			Extension: ".png",
			File:      d.Raster,
			Format: &excelize.GraphicOptions{
				AltText:         "Duty status timeline",
				ScaleX:          scale,
				ScaleY:          scale,
				LockAspectRatio: true,
			},
		}); err != nil {
			return nil, fmt.Errorf("%w: picture: %w", ErrEncode, err)
		}
		w.row += pictureRows
	}

	w.header("Status", "Timeline", "Reported hours")
	reported := d.reportedHours()
	for _, t := range d.Model.Totals {
		w.values(t.Label, t.Formatted, reported[t.Status])
	}
	w.values("Total", d.Model.TotalSum, d.Report.DrivingHours+d.Report.OnDutyHours+d.Report.OffDutyHours+d.Report.SleeperBerthHours)

	if len(d.Report.Trips) > 0 {
		w.skip()
		w.header("Trip start", "Trip end", "Distance", "Hours")
		for _, t := range d.Report.Trips {
			w.values(t.StartTime, t.EndTime, t.Distance, t.Duration)
		}
	}
	if w.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, w.err)
	}

	if err := d.layout(f); err != nil {
		return nil, fmt.Errorf("%w: layout: %w", ErrEncode, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// pictureRows is how many default-height rows the scaled raster covers.
const pictureRows = 14

func (d Document) title() string {
	if d.Report.Name != "" {
		return d.Report.Name
	}
	return "Daily Log for " + d.date()
}

func (d Document) date() string {
	if d.Report.Date != "" {
		return d.Report.Date
	}
	return d.Model.Window.Start.Format("2006-01-02")
}

func (d Document) reportedHours() map[status.Status]float64 {
	return map[status.Status]float64{
		status.OffDuty:      d.Report.OffDutyHours,
		status.SleeperBerth: d.Report.SleeperBerthHours,
		status.Driving:      d.Report.DrivingHours,
		status.OnDuty:       d.Report.OnDutyHours,
	}
}

// layout fits the sheet to a single portrait page.
func (d Document) layout(f *excelize.File) error {
	fit := true
	if err := f.SetSheetProps(SheetName, &excelize.SheetPropsOptions{FitToPage: &fit}); err != nil {
		return err
	}
	one := 1
	portrait := "portrait"
	if err := f.SetPageLayout(SheetName, &excelize.PageLayoutOptions{
		Orientation: &portrait,
		FitToWidth:  &one,
		FitToHeight: &one,
	}); err != nil {
		return err
	}
	return f.SetColWidth(SheetName, "A", "D", 22)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	bold int
	row  int
	err  error
}

func (w *sheetWriter) set(col int, v any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(SheetName, cell(col, w.row), v)
}

func (w *sheetWriter) style(from, to int) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(SheetName, cell(from, w.row), cell(to, w.row), w.bold)
}

func (w *sheetWriter) title(text string) {
	w.row++
	w.set(1, text)
	w.style(1, 1)
	w.row++
}

func (w *sheetWriter) pair(label, value string) {
	w.row++
	w.set(1, label)
	w.set(2, value)
	w.style(1, 1)
}

func (w *sheetWriter) header(labels ...string) {
	w.row++
	for i, l := range labels {
		w.set(i+1, l)
	}
	w.style(1, len(labels))
}

func (w *sheetWriter) values(vs ...any) {
	w.row++
	for i, v := range vs {
		w.set(i+1, v)
	}
}

func (w *sheetWriter) skip() { w.row++ }
