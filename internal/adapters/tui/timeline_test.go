package tui_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/okian/eldlog/internal/adapters/tui"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/internal/domain/status"
	. "github.com/smartystreets/goconvey/convey"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

// row returns the cells of the grid row labelled name.
func row(out, name string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, name+" ") {
			rest := strings.TrimSpace(strings.TrimPrefix(line, name))
			if strings.ContainsAny(rest, "█·") {
				return rest
			}
		}
	}
	return ""
}

func TestTimelineRender(t *testing.T) {
	Convey("Given a day with a pending change", t, func() {
		m := render.Build(render.Input{
			Events: model.EventList{
				{Time: at(0), Status: status.OffDuty},
				{Time: at(6), Status: status.Driving},
				{Time: at(10), Status: status.OnDuty, PendingOp: "op-1"},
			},
		}, at(12))

		Convey("When drawn at one cell per hour", func() {
			out := tui.New(&bytes.Buffer{}, tui.WithCellsPerHour(1)).Render(m)

			Convey("Then each status fills the hours it held", func() {
				So(row(out, "Off Duty"), ShouldEqual, strings.Repeat("█", 6)+strings.Repeat("·", 18))
				So(row(out, "Sleeper Berth"), ShouldEqual, strings.Repeat("·", 24))
				So(row(out, "Driving"), ShouldEqual, strings.Repeat("·", 6)+strings.Repeat("█", 4)+strings.Repeat("·", 14))
				So(row(out, "On Duty"), ShouldEqual, strings.Repeat("·", 10)+strings.Repeat("█", 2)+strings.Repeat("·", 12))
			})

			Convey("Then the header and totals are printed", func() {
				So(out, ShouldContainSubstring, "Daily log 2024-03-01")
				So(out, ShouldContainSubstring, "1 pending")
				So(out, ShouldContainSubstring, fmt.Sprintf("%-15s%s", "Driving", "4h 0m"))
				So(out, ShouldContainSubstring, fmt.Sprintf("%-15s%s", "Total", "10h 0m"))
			})
		})

		Convey("When drawn at the default resolution", func() {
			out := tui.New(&bytes.Buffer{}).Render(m)

			Convey("Then every quarter hour is a cell and hours are labelled", func() {
				So([]rune(row(out, "Off Duty")), ShouldHaveLength, 96)
				So(out, ShouldContainSubstring, "M   01  02  03")
			})
		})
	})

	Convey("Given an empty, stale day", t, func() {
		m := render.Build(render.Input{Stale: true, Banner: "collaborator unreachable"}, at(8))
		out := tui.New(&bytes.Buffer{}, tui.WithCellsPerHour(1)).Render(m)

		Convey("Then the grid is blank and the state is flagged", func() {
			So(row(out, "Driving"), ShouldEqual, strings.Repeat("·", 24))
			So(out, ShouldContainSubstring, "stale")
			So(out, ShouldContainSubstring, "collaborator unreachable")
			So(out, ShouldContainSubstring, "no status records")
		})
	})
}
