package logger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/eldlog/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized twice", func() {
			So(logger.Init(), ShouldBeNil)
			So(logger.Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				So(logger.Get(), ShouldNotBeNil)
				So(logger.Sync(), ShouldBeNil)
			})
		})

		Convey("When a nil writer is supplied", func() {
			err := logger.InitWithWriter(nil)

			Convey("Then initialization fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with structured fields", func() {
			logger.Get().Info(ctx, "render pass",
				logger.String("window", "2024-03-01"),
				logger.Int("events", 3),
				logger.Bool("stale", false),
				logger.Duration("took", 2*time.Millisecond),
				logger.Error(errors.New("boom")),
			)
			out := buf.String()

			Convey("Then every field and the caller are present", func() {
				So(out, ShouldContainSubstring, "msg=\"render pass\"")
				So(out, ShouldContainSubstring, "window=2024-03-01")
				So(out, ShouldContainSubstring, "events=3")
				So(out, ShouldContainSubstring, "stale=false")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When a named logger is used", func() {
			logger.Named("coordinator").Warn(ctx, "rollback", logger.String("op", "abc"))

			Convey("Then fields are grouped under the name", func() {
				So(buf.String(), ShouldContainSubstring, "coordinator.op=abc")
			})
		})

		Convey("When the level is raised to error", func() {
			So(logger.SetLevelString("ERROR"), ShouldBeNil)
			logger.Get().Info(ctx, "hidden")
			logger.Get().Debug(ctx, "hidden too")
			logger.Get().Error(ctx, "visible")

			Convey("Then lower levels are suppressed", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "visible")
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("Then known names are accepted", func() {
			for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " Info "} {
				So(logger.SetLevelString(lvl), ShouldBeNil)
			}
		})

		Convey("Then unknown names are rejected", func() {
			So(logger.SetLevelString("verbose"), ShouldNotBeNil)
		})
	})
}
