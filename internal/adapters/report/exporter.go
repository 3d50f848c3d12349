package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

// Object is one stored file of an export.
type Object struct {
	Key         string `json:"key"`
	Location    string `json:"location"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Artifact describes a finished export.
type Artifact struct {
	ID        string    `json:"id"`
	Sink      string    `json:"sink"`
	Document  Object    `json:"document"`
	Raster    Object    `json:"raster"`
	Version   uint64    `json:"version"`
	Stale     bool      `json:"stale"`
	CreatedAt time.Time `json:"created_at"`
}

// Exporter renders a model and report into a raster and a document and
// stores both in a sink.
type Exporter struct {
	raster    *Rasterizer
	sink      Sink
	pageWidth int
	now       func() time.Time
	newID     func() string
	logger    logger.Logger
}

// NewExporter creates an exporter writing to sink.
func NewExporter(sink Sink, opts ...Option) (*Exporter, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrConfig)
	}
	o := applyOptions("exporter", opts)
	return &Exporter{
		raster:    &Rasterizer{width: o.width, height: o.height, logger: o.logger},
		sink:      sink,
		pageWidth: o.pageWidth,
		now:       o.now,
		newID:     o.newID,
		logger:    o.logger,
	}, nil
}

// Raster returns the PNG of m.
func (e *Exporter) Raster(ctx context.Context, m render.Model) ([]byte, error) {
	return e.raster.Render(ctx, m)
}

// Document returns the XLSX of m and rep along with the raster it embeds.
func (e *Exporter) Document(ctx context.Context, m render.Model, rep model.DailyReport) (doc, raster []byte, err error) {
	raster, err = e.raster.Render(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	width, _ := e.raster.Size()
	doc, err = Document{
		Model:       m,
		Report:      rep,
		Raster:      raster,
		RasterWidth: width,
		PageWidth:   e.pageWidth,
	}.Encode()
	if err != nil {
		return nil, nil, err
	}
	return doc, raster, nil
}

// Export renders m and rep and writes both files to the sink. Keys are
// <date>/<id>.xlsx and <date>/<id>.png with the date of the model's day.
func (e *Exporter) Export(ctx context.Context, m render.Model, rep model.DailyReport) (Artifact, error) {
	doc, raster, err := e.Document(ctx, m, rep)
	if err != nil {
		metrics.RecordErrorByComponent("report", "encode")
		return Artifact{}, err
	}

	id := e.newID()
	base := m.Window.Start.Format("2006-01-02") + "/" + id
	art := Artifact{
		ID:        id,
		Sink:      e.sink.Name(),
		Document:  Object{Key: base + ".xlsx", ContentType: ContentTypeXLSX, Size: len(doc)},
		Raster:    Object{Key: base + ".png", ContentType: ContentTypePNG, Size: len(raster)},
		Version:   m.Version,
		Stale:     m.Stale,
		CreatedAt: e.now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc, err := e.sink.Put(gctx, art.Document.Key, doc, ContentTypeXLSX)
		art.Document.Location = loc
		return err
	})
	g.Go(func() error {
		loc, err := e.sink.Put(gctx, art.Raster.Key, raster, ContentTypePNG)
		art.Raster.Location = loc
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("report", "sink")
		e.logger.Error(ctx, "export failed", logger.String("id", id), logger.String("sink", art.Sink), logger.Error(err))
		return Artifact{}, err
	}

	metrics.RecordReportExported(art.Sink)
	e.logger.Info(ctx, "daily log exported",
		logger.String("id", id),
		logger.String("sink", art.Sink),
		logger.String("document", art.Document.Location),
		logger.Any("version", m.Version),
	)
	return art, nil
}
