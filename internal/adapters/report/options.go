package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/eldlog/pkg/logger"
)

const (
	defaultRasterWidth  = 1200
	defaultRasterHeight = 360
	defaultPageWidth    = 720
)

// Option configures a Rasterizer or an Exporter.
type Option func(*options)

type options struct {
	width     int
	height    int
	pageWidth int
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

// WithSize sets the raster size in pixels.
func WithSize(width, height int) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.width, o.height = width, height
		}
	}
}

// WithPageWidth sets the printable page width in pixels the raster is
// scaled to inside the document.
func WithPageWidth(px int) Option {
	return func(o *options) {
		if px > 0 {
			o.pageWidth = px
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the object key suffix generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func applyOptions(name string, opts []Option) options {
	o := options{
		width:     defaultRasterWidth,
		height:    defaultRasterHeight,
		pageWidth: defaultPageWidth,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(name)
	}
	return o
}
