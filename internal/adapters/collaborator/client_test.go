package collaborator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/normalize"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type request struct {
	method string
	path   string
	body   map[string]any
}

type recorded struct {
	mu   sync.Mutex
	last request
}

func (r *recorded) capture(req *http.Request) {
	got := request{method: req.Method, path: req.URL.Path}
	if data, _ := io.ReadAll(req.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &got.body)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = got
}

func (r *recorded) request() request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newServer(rec *recorded, handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec.capture(req)
		handler(w, req)
	}))
}

func TestClientList(t *testing.T) {
	Convey("Given a collaborator serving the status log", t, func() {
		ctx := context.Background()
		rec := &recorded{}

		Convey("When the body is a bare array", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `[
					{"id": 1, "status": "off_duty", "status_display": "Off Duty", "time": "2024-03-01T00:00:00", "end_time": null},
					{"id": 2, "status": "driving", "time": 1709272800000, "trip": 7}
				]`)
			})
			defer srv.Close()

			client, err := collaborator.New(srv.URL + "/")
			So(err, ShouldBeNil)
			records, err := client.ListStatusLogs(ctx)

			Convey("Then every record is decoded as received", func() {
				So(err, ShouldBeNil)
				So(rec.request().method, ShouldEqual, http.MethodGet)
				So(rec.request().path, ShouldEqual, "/api/status-logs/")
				So(records, ShouldHaveLength, 2)
				So(records[0].ID, ShouldEqual, model.Ident("1"))
				So(records[0].StatusDisplay, ShouldEqual, "Off Duty")
				So(records[1].Time.Numeric, ShouldBeTrue)
				So(records[1].Trip, ShouldEqual, model.Ident("7"))
			})
		})

		Convey("When the body is paginated", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"count": 1, "results": [{"status": "on_duty", "time": "2024-03-01T06:00:00Z"}]}`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			records, err := client.ListStatusLogs(ctx)

			Convey("Then the results are unwrapped", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 1)
				So(records[0].Status, ShouldEqual, "on_duty")
			})
		})

		Convey("When one record carries a timestamp of the wrong type", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `[
					{"id": 1, "status": "off_duty", "time": "2024-03-01T00:00:00Z"},
					{"id": 2, "status": "driving", "time": true},
					{"id": 3, "status": {"code": "on_duty"}, "time": "2024-03-01T10:00:00Z"}
				]`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			records, err := client.ListStatusLogs(ctx)

			Convey("Then the fetch succeeds and only that record is dropped", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 3)

				res := normalize.New(normalize.WithLocation(time.UTC)).Normalize(ctx, records)
				So(res.Events, ShouldHaveLength, 2)
				So(res.Dropped, ShouldEqual, 1)
				So(res.Fallbacks, ShouldEqual, 1)
				So(res.Events[0].Status, ShouldEqual, status.OffDuty)
				So(res.Events[1].Fallback, ShouldBeTrue)
				So(res.Events[1].RemoteID, ShouldEqual, "3")
			})
		})

		Convey("When the collaborator fails", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			_, err := client.ListStatusLogs(ctx)

			Convey("Then a fetch failure is reported", func() {
				So(errors.Is(err, model.ErrRemoteFetchFailure), ShouldBeTrue)
				So(errors.Is(err, collaborator.ErrUnexpectedStatus), ShouldBeTrue)
			})
		})

		Convey("When the body is not JSON", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `<html>oops</html>`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			_, err := client.ListStatusLogs(ctx)

			Convey("Then a decode failure is reported", func() {
				So(errors.Is(err, model.ErrRemoteFetchFailure), ShouldBeTrue)
				So(errors.Is(err, collaborator.ErrDecode), ShouldBeTrue)
			})
		})
	})
}

func TestClientCreate(t *testing.T) {
	Convey("Given a collaborator accepting status records", t, func() {
		ctx := context.Background()
		rec := &recorded{}
		loc := time.FixedZone("CST", -6*3600)
		sub := model.Submission{
			OperationID: "op-1",
			Status:      status.SleeperBerth,
			Time:        time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC),
			TripID:      "42",
		}

		Convey("When a submission is created", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id": 99, "status": "sleeper_berth", "time": "2024-03-01T12:30:00"}`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL, collaborator.WithSession(model.NewSession("42", loc)))
			id, err := client.CreateStatusLog(ctx, sub)

			Convey("Then the wire status, local wall time and trip are posted", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "99")
				So(rec.request().method, ShouldEqual, http.MethodPost)
				So(rec.request().path, ShouldEqual, "/api/status-logs/")
				So(rec.request().body["status"], ShouldEqual, "sleeper_berth")
				So(rec.request().body["time"], ShouldEqual, "2024-03-01T12:30:00")
				So(rec.request().body["trip"], ShouldEqual, "42")
			})
		})

		Convey("When the collaborator refuses with an error payload", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error": "New status time must be after the latest status end time."}`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			_, err := client.CreateStatusLog(ctx, sub)

			Convey("Then the refusal message is surfaced", func() {
				So(errors.Is(err, model.ErrRemoteSubmitFailure), ShouldBeTrue)
				So(errors.Is(err, collaborator.ErrRejected), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "latest status end time")
			})
		})

		Convey("When the collaborator refuses with a field error body", func() {
			srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"status": ["\"napping\" is not a valid choice."]}`)
			})
			defer srv.Close()

			client, _ := collaborator.New(srv.URL)
			_, err := client.CreateStatusLog(ctx, sub)

			Convey("Then it is still a rejection", func() {
				So(errors.Is(err, collaborator.ErrRejected), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "not a valid choice")
			})
		})

		Convey("When the collaborator is unreachable", func() {
			srv := newServer(rec, func(http.ResponseWriter, *http.Request) {})
			url := srv.URL
			srv.Close()

			client, _ := collaborator.New(url, collaborator.WithTimeout(200*time.Millisecond))
			_, err := client.CreateStatusLog(ctx, sub)

			Convey("Then a submit failure is reported", func() {
				So(errors.Is(err, model.ErrRemoteSubmitFailure), ShouldBeTrue)
				So(errors.Is(err, collaborator.ErrRejected), ShouldBeFalse)
			})
		})
	})
}

func TestClientReport(t *testing.T) {
	Convey("Given a collaborator serving the daily report", t, func() {
		rec := &recorded{}
		srv := newServer(rec, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{
				"name": "Daily Log for 2024-03-01", "date": "2024-03-01",
				"vehicle_license_number": "ABC123", "driver_name": "J. Doe",
				"driving_hours": 4, "on_duty_hours": 1.5, "off_duty_hours": 18.5, "sleeper_berth_hours": 0,
				"total_miles": 212.4, "cumulative_mileage": 1200,
				"trips": [{"start_time": "2024-03-01T06:00:00", "end_time": "2024-03-01T10:00:00", "distance": 212.4, "duration": 4}]
			}`)
		})
		defer srv.Close()

		client, _ := collaborator.New(srv.URL)
		report, err := client.DailyReport(context.Background())

		Convey("Then the report is decoded", func() {
			So(err, ShouldBeNil)
			So(rec.request().path, ShouldEqual, "/api/daily-logs/generate_report/")
			So(report.VehicleLicenseNumber, ShouldEqual, "ABC123")
			So(report.DrivingHours, ShouldEqual, 4)
			So(report.Trips, ShouldHaveLength, 1)
			So(report.Trips[0].Duration, ShouldEqual, 4)
		})
	})
}

func TestClientBaseURL(t *testing.T) {
	Convey("Given invalid base urls", t, func() {
		for _, raw := range []string{"", "localhost:8000", "ftp://host", "http://"} {
			_, err := collaborator.New(raw)
			So(errors.Is(err, collaborator.ErrInvalidBaseURL), ShouldBeTrue)
		}
	})

	Convey("Given a base url with a trailing slash", t, func() {
		client, err := collaborator.New("http://example.test:8000/")
		So(err, ShouldBeNil)
		So(client.BaseURL(), ShouldEqual, "http://example.test:8000")
	})
}
