package collaborator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServerRoundTrip(t *testing.T) {
	Convey("Given a client talking to a server over a file source", t, func() {
		ctx := context.Background()
		dir, err := os.MkdirTemp("", "eldlog-serve")
		So(err, ShouldBeNil)
		Reset(func() { _ = os.RemoveAll(dir) })

		src := collaborator.NewFileSource(filepath.Join(dir, "log.yaml"),
			collaborator.WithFileLocation(time.UTC),
			collaborator.WithFileClock(func() time.Time { return at(23, 0) }),
		)
		srv := httptest.NewServer(collaborator.NewServer(src, time.UTC).Handler())
		Reset(srv.Close)

		client, err := collaborator.New(srv.URL, collaborator.WithSession(model.NewSession("9", time.UTC)))
		So(err, ShouldBeNil)

		Convey("When changes are created through the client", func() {
			id1, err1 := client.CreateStatusLog(ctx, model.Submission{Status: status.OffDuty, Time: at(0, 0), TripID: "9"})
			id2, err2 := client.CreateStatusLog(ctx, model.Submission{Status: status.Driving, Time: at(7, 30), TripID: "9"})

			Convey("Then they are stored and listed back", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(id1, ShouldEqual, "1")
				So(id2, ShouldEqual, "2")

				records, err := client.ListStatusLogs(ctx)
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 2)
				So(records[1].Status, ShouldEqual, "driving")
				So(records[1].Time.Text, ShouldEqual, "2024-03-01T07:30:00")
				So(records[0].Trip, ShouldEqual, model.Ident("9"))
			})

			Convey("And the daily report sums the closed record", func() {
				rep, err := client.DailyReport(ctx)
				So(err, ShouldBeNil)
				So(rep.OffDutyHours, ShouldEqual, 7.5)
			})

			Convey("And an earlier change is refused with the collaborator's message", func() {
				_, err := client.CreateStatusLog(ctx, model.Submission{Status: status.OnDuty, Time: at(6, 0)})
				So(errors.Is(err, model.ErrRemoteSubmitFailure), ShouldBeTrue)
				So(errors.Is(err, collaborator.ErrRejected), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "must be after the latest status time")
			})
		})

		Convey("When a malformed body is posted", func() {
			resp, err := http.Post(srv.URL+"/api/status-logs/", "application/json", strings.NewReader(`{"status":"flying","time":"2024-03-01T08:00:00"}`))
			So(err, ShouldBeNil)
			_ = resp.Body.Close()

			Convey("Then it is a bad request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the report route is posted to", func() {
			resp, err := http.Post(srv.URL+"/api/daily-logs/generate_report/", "application/json", nil)
			So(err, ShouldBeNil)
			_ = resp.Body.Close()

			Convey("Then the method is not allowed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}
