package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	"github.com/okian/eldlog/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	convey.Convey("Given a status log file", t, func() {
		dir, err := os.MkdirTemp("", "eldctl")
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() { _ = os.RemoveAll(dir) })
		file := filepath.Join(dir, "log.yaml")
		base := []string{"--file", file, "--tz", "UTC", "--trip", "7"}

		convey.Convey("When changes are submitted in order", func() {
			first, err1 := execute(append(base, "submit", "off_duty", "2024-03-01T00:00:00")...)
			second, err2 := execute(append(base, "submit", "Driving", "2024-03-01T06:00:00")...)

			convey.Convey("Then each is confirmed with its record id", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(first, convey.ShouldContainSubstring, "confirmed as record 1")
				convey.So(second, convey.ShouldContainSubstring, "confirmed as record 2")
			})

			convey.Convey("And the timeline renders the totals", func() {
				out, err := execute(append(base, "render", "--cells", "1")...)
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Daily log")
				convey.So(out, convey.ShouldContainSubstring, "6h 0m")
			})

			convey.Convey("And an earlier change is rolled back", func() {
				_, err := execute(append(base, "submit", "on_duty", "2024-03-01T05:00:00")...)
				convey.So(errors.Is(err, errRolledBack), convey.ShouldBeTrue)
				convey.So(errors.Is(err, collaborator.ErrRejected), convey.ShouldBeTrue)
			})

			convey.Convey("And the daily log exports to the output directory", func() {
				outDir := filepath.Join(dir, "out")
				out, err := execute(append(base, "export", "--out", outDir, "--width", "400", "--height", "120")...)
				convey.So(err, convey.ShouldBeNil)

				paths := strings.Fields(out)
				convey.So(paths, convey.ShouldHaveLength, 2)
				convey.So(paths[0], convey.ShouldEndWith, ".xlsx")
				convey.So(paths[1], convey.ShouldEndWith, ".png")
				for _, p := range paths {
					convey.So(strings.HasPrefix(p, outDir), convey.ShouldBeTrue)
					_, err := os.Stat(p)
					convey.So(err, convey.ShouldBeNil)
				}
			})
		})

		convey.Convey("When an invalid status is submitted", func() {
			_, err := execute(append(base, "submit", "flying", "2024-03-01T06:00:00")...)

			convey.Convey("Then the command fails without touching the file", func() {
				convey.So(err, convey.ShouldNotBeNil)
				_, statErr := os.Stat(file)
				convey.So(os.IsNotExist(statErr), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given no source flags", t, func() {
		_, err := execute("render")

		convey.Convey("Then the command refuses to run", func() {
			convey.So(errors.Is(err, errSource), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given both source flags", t, func() {
		_, err := execute("--file", "log.yaml", "--base-url", "http://localhost:8000", "render")

		convey.Convey("Then the command refuses to run", func() {
			convey.So(errors.Is(err, errSource), convey.ShouldBeTrue)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given a handler served on a local port", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))
		}()

		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		convey.So(err, convey.ShouldBeNil)
		_ = resp.Body.Close()
		cancel()

		convey.Convey("Then requests reach it and cancellation stops it cleanly", func() {
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusTeapot)
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				convey.So("serve did not stop", convey.ShouldBeEmpty)
			}
		})
	})
}
