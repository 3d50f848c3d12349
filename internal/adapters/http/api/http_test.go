package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/eldlog/internal/adapters/http/api"
	"github.com/okian/eldlog/internal/domain/coordinator"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type emptyFetcher struct{}

func (emptyFetcher) ListStatusLogs(context.Context) ([]model.RawRecord, error) { return nil, nil }

// mockDependencies backs the handlers with a real coordinator and canned
// report artifacts.
type mockDependencies struct {
	coord  *coordinator.Coordinator
	now    time.Time
	accept bool

	refreshErr error
	report     model.DailyReport
	reportErr  error
	document   []byte
	raster     []byte

	mu        sync.Mutex
	listeners map[int]func(render.Model)
	nextID    int
}

func newMockDependencies() *mockDependencies {
	d := &mockDependencies{
		now:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		accept:    true,
		listeners: map[int]func(render.Model){},
		report:    model.DailyReport{Date: "2024-03-01", DriverName: "J. Doe", DrivingHours: 4},
		document:  []byte("PK-document"),
		raster:    []byte("\x89PNG-raster"),
	}
	d.coord = coordinator.New(emptyFetcher{},
		coordinator.DispatcherFunc(func(context.Context, model.Submission) bool { return d.accept }),
		coordinator.WithSession(model.NewSession("trip-1", time.UTC)),
		coordinator.WithClock(func() time.Time { return d.now }),
	)
	return d
}

func (d *mockDependencies) Timeline(context.Context) render.Model {
	return render.Build(d.coord.Snapshot().RenderInput(), d.now)
}

func (d *mockDependencies) Refresh(context.Context) error { return d.refreshErr }

func (d *mockDependencies) Submit(ctx context.Context, rawStatus, rawTime string) (*coordinator.Operation, error) {
	return d.coord.Submit(ctx, rawStatus, rawTime)
}

func (d *mockDependencies) Operation(_ context.Context, id string) (*coordinator.Operation, error) {
	op, ok := d.coord.Operation(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", coordinator.ErrOperationNotFound, id)
	}
	return op, nil
}

func (d *mockDependencies) DailyReport(context.Context) (model.DailyReport, error) {
	return d.report, d.reportErr
}

func (d *mockDependencies) Document(context.Context) ([]byte, error) {
	return d.document, d.reportErr
}

func (d *mockDependencies) Raster(context.Context) ([]byte, error) {
	return d.raster, d.reportErr
}

func (d *mockDependencies) Subscribe(fn func(render.Model)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *mockDependencies) publish(m render.Model) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fn := range d.listeners {
		fn(m)
	}
}

func (d *mockDependencies) subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"event_list_size": 3}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type operationBody struct {
	ID       string `json:"operation_id"`
	State    string `json:"state"`
	Status   string `json:"status"`
	TripID   string `json:"trip"`
	RemoteID string `json:"remote_id"`
	Error    string `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.NewDecoder(w.Body).Decode(&v), ShouldBeNil)
	return v
}

func TestEventRoutes(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When a valid status change is posted", func() {
			w := do(mux, http.MethodPost, "/events", `{"status":"driving","time":"2024-03-01T08:00:00"}`)

			Convey("Then it is accepted as a pending operation", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				body := decode[operationBody](w)
				So(body.State, ShouldEqual, "pending")
				So(body.Status, ShouldEqual, "Driving")
				So(body.TripID, ShouldEqual, "trip-1")
				So(w.Header().Get("Location"), ShouldEqual, "/operations/"+body.ID)

				Convey("And the timeline shows it as pending", func() {
					tw := do(mux, http.MethodGet, "/timeline", "")
					So(tw.Code, ShouldEqual, http.StatusOK)
					m := decode[struct {
						Pending     int               `json:"pending"`
						HourlyTicks []json.RawMessage `json:"hourly_ticks"`
					}](tw)
					So(m.Pending, ShouldEqual, 1)
					So(m.HourlyTicks, ShouldHaveLength, 25)
				})

				Convey("And the operation resolves once confirmed", func() {
					So(deps.coord.Confirm(context.Background(), body.ID, "42"), ShouldBeNil)
					ow := do(mux, http.MethodGet, "/operations/"+body.ID, "")
					So(ow.Code, ShouldEqual, http.StatusOK)
					op := decode[operationBody](ow)
					So(op.State, ShouldEqual, "confirmed")
					So(op.RemoteID, ShouldEqual, "42")
				})
			})
		})

		Convey("When the dispatch queue refuses the change", func() {
			deps.accept = false
			w := do(mux, http.MethodPost, "/events", `{"status":"on_duty","time":"2024-03-01T09:00:00"}`)

			Convey("Then backpressure is reported and nothing stays pending", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode[errorBody](w).Code, ShouldEqual, "backpressure")
				So(deps.coord.PendingOperations(), ShouldBeEmpty)
			})
		})

		Convey("When the request is malformed", func() {
			bodies := []string{
				`{`,
				`{"time":"2024-03-01T08:00:00"}`,
				`{"status":"driving"}`,
				`{"status":"flying","time":"2024-03-01T08:00:00"}`,
				`{"status":"driving","time":"tomorrow-ish"}`,
			}
			for _, body := range bodies {
				w := do(mux, http.MethodPost, "/events", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[errorBody](w).Code, ShouldEqual, "bad_request")
			}

			Convey("Then nothing is applied", func() {
				So(deps.coord.PendingOperations(), ShouldBeEmpty)
			})
		})

		Convey("When the engine is closed", func() {
			deps.coord.Close()
			w := do(mux, http.MethodPost, "/events", `{"status":"driving","time":"2024-03-01T08:00:00"}`)

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When an unknown operation is requested", func() {
			w := do(mux, http.MethodGet, "/operations/nope", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode[errorBody](w).Code, ShouldEqual, "not_found")
			})
		})

		Convey("When an operation path has no id", func() {
			So(do(mux, http.MethodGet, "/operations/", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the wrong method is used", func() {
			So(do(mux, http.MethodGet, "/events", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/timeline", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/refresh", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRefreshRoute(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When the refresh succeeds", func() {
			w := do(mux, http.MethodPost, "/refresh", "")

			Convey("Then the fresh timeline is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			})
		})

		Convey("When the collaborator is unreachable", func() {
			deps.refreshErr = fmt.Errorf("%w: connection refused", model.ErrRemoteFetchFailure)
			w := do(mux, http.MethodPost, "/refresh", "")

			Convey("Then a bad gateway is reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				body := decode[errorBody](w)
				So(body.Code, ShouldEqual, "upstream")
				So(body.Message, ShouldContainSubstring, "connection refused")
			})
		})
	})
}

func TestReportRoutes(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When the daily log is requested", func() {
			w := do(mux, http.MethodGet, "/daily-log", "")

			Convey("Then the collaborator's report is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				rep := decode[model.DailyReport](w)
				So(rep.DriverName, ShouldEqual, "J. Doe")
				So(rep.DrivingHours, ShouldEqual, 4.0)
			})
		})

		Convey("When the document is requested", func() {
			w := do(mux, http.MethodGet, "/report", "")

			Convey("Then it is served as an attachment", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "daily-log.xlsx")
				So(w.Body.String(), ShouldEqual, "PK-document")
			})
		})

		Convey("When the raster is requested", func() {
			w := do(mux, http.MethodGet, "/report.png", "")

			Convey("Then the PNG bytes are served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")
				So(w.Header().Get("Content-Length"), ShouldEqual, fmt.Sprint(len(deps.raster)))
			})
		})

		Convey("When the report cannot be fetched", func() {
			deps.reportErr = fmt.Errorf("%w: status 500", model.ErrRemoteFetchFailure)

			Convey("Then every report route reports a bad gateway", func() {
				So(do(mux, http.MethodGet, "/daily-log", "").Code, ShouldEqual, http.StatusBadGateway)
				So(do(mux, http.MethodGet, "/report", "").Code, ShouldEqual, http.StatusBadGateway)
				So(do(mux, http.MethodGet, "/report.png", "").Code, ShouldEqual, http.StatusBadGateway)
			})
		})

		Convey("When the artifacts fail for another reason", func() {
			deps.reportErr = fmt.Errorf("encode: broken")

			Convey("Then an internal error is reported", func() {
				w := do(mux, http.MethodGet, "/report", "")
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode[errorBody](w).Code, ShouldEqual, "internal")
			})
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a registered API", t, func() {
		mux := newMux(newMockDependencies())

		Convey("When health is requested as JSON", func() {
			w := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then the service reports ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]string](w)["status"], ShouldEqual, "ok")
			})
		})

		Convey("When health is requested as plain text", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Accept", "text/plain")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then metrics are served instead", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldNotStartWith, "application/json")
			})
		})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then the provider's counters are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]interface{}](w)["event_list_size"], ShouldEqual, float64(3))
			})
		})
	})
}

func TestTimelineStream(t *testing.T) {
	Convey("Given a running API server", t, func() {
		deps := newMockDependencies()
		srv := httptest.NewServer(newMux(deps))
		Reset(srv.Close)
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/timeline"

		Convey("When a client connects", func() {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			Reset(func() { _ = conn.Close() })
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var first render.Model
			So(conn.ReadJSON(&first), ShouldBeNil)

			Convey("Then it receives the current timeline and every later pass", func() {
				So(first.HourlyTicks, ShouldHaveLength, 25)
				So(deps.subscribers(), ShouldEqual, 1)

				deps.publish(render.Model{Version: 99})
				var next render.Model
				So(conn.ReadJSON(&next), ShouldBeNil)
				So(next.Version, ShouldEqual, uint64(99))
			})

			Convey("Then closing it unsubscribes", func() {
				So(conn.Close(), ShouldBeNil)
				deadline := time.Now().Add(2 * time.Second)
				for deps.subscribers() > 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(deps.subscribers(), ShouldEqual, 0)
			})
		})

		Convey("When a client from another origin connects", func() {
			_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://elsewhere.example"}})

			Convey("Then the upgrade is refused", func() {
				So(err, ShouldNotBeNil)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})
	})
}
