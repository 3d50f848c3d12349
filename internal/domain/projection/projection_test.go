package projection_test

import (
	"testing"
	"time"

	"github.com/okian/eldlog/internal/domain/axis"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/projection"
	"github.com/okian/eldlog/internal/domain/status"
	. "github.com/smartystreets/goconvey/convey"
)

func TestProject(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }
	w := axis.DayWindowFor(day)

	Convey("Given the three-event day", t, func() {
		events := model.EventList{
			{Time: at(0), Status: status.OffDuty},
			{Time: at(6), Status: status.Driving},
			{Time: at(10), Status: status.OffDuty},
		}

		Convey("When projected at 15:00", func() {
			pl := projection.Project(events, w, at(15))

			Convey("Then each event is a vertex on its status row", func() {
				So(pl.Vertices, ShouldHaveLength, 3)
				So(pl.Vertices[1].Level, ShouldEqual, status.Driving.Level())
				So(pl.Extent, ShouldEqual, at(15))
			})

			Convey("Then the step path holds then jumps", func() {
				steps := pl.Steps()
				So(steps, ShouldResemble, []projection.Point{
					{Time: at(0), Level: 0},
					{Time: at(6), Level: 0},
					{Time: at(6), Level: 2},
					{Time: at(10), Level: 2},
					{Time: at(10), Level: 0},
					{Time: at(15), Level: 0},
				})
			})

			Convey("Then the held status is readable at any instant", func() {
				st, ok := pl.StatusAt(at(7))
				So(ok, ShouldBeTrue)
				So(st, ShouldEqual, status.Driving)

				st, ok = pl.StatusAt(at(6))
				So(ok, ShouldBeTrue)
				So(st, ShouldEqual, status.Driving)

				_, ok = pl.StatusAt(at(16))
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When projected after the day has ended", func() {
			pl := projection.Project(events, w, at(40))

			Convey("Then the open status stops at the window end", func() {
				So(pl.Extent, ShouldEqual, w.End)
			})
		})
	})

	Convey("Given events outside the window", t, func() {
		events := model.EventList{
			{Time: at(-3), Status: status.SleeperBerth},
			{Time: at(-1), Status: status.OnDuty},
			{Time: at(4), Status: status.Driving},
			{Time: at(26), Status: status.OffDuty},
		}
		pl := projection.Project(events, w, at(30))

		Convey("Then the status in force at midnight is carried in", func() {
			So(pl.Vertices, ShouldHaveLength, 2)
			So(pl.Vertices[0].Time, ShouldEqual, w.Start)
			So(pl.Vertices[0].Status, ShouldEqual, status.OnDuty)
			So(pl.Vertices[1].Status, ShouldEqual, status.Driving)
		})

		Convey("Then nothing past the window end is drawn", func() {
			So(pl.Extent, ShouldEqual, w.End)
			for _, v := range pl.Vertices {
				So(v.Time.Before(w.End), ShouldBeTrue)
			}
		})
	})

	Convey("Given an event exactly at midnight after an earlier one", t, func() {
		pl := projection.Project(model.EventList{
			{Time: at(-2), Status: status.OnDuty},
			{Time: at(0), Status: status.Driving},
		}, w, at(1))

		Convey("Then the midnight event wins over the carried status", func() {
			So(pl.Vertices, ShouldHaveLength, 1)
			So(pl.Vertices[0].Status, ShouldEqual, status.Driving)
		})
	})

	Convey("Given an unplottable status value", t, func() {
		pl := projection.Project(model.EventList{{Time: at(2), Status: status.Status(42)}}, w, at(3))

		Convey("Then it is drawn as off duty and flagged", func() {
			So(pl.Vertices[0].Status, ShouldEqual, status.OffDuty)
			So(pl.Vertices[0].Fallback, ShouldBeTrue)
		})
	})

	Convey("Given pending and unsorted events", t, func() {
		pl := projection.Project(model.EventList{
			{Time: at(9), Status: status.OnDuty, PendingOp: "op"},
			{Time: at(1), Status: status.OffDuty},
		}, w, at(8))

		Convey("Then vertices are ordered and the pending one is marked", func() {
			So(pl.Vertices[0].Time, ShouldEqual, at(1))
			So(pl.Vertices[1].Pending, ShouldBeTrue)
			So(pl.Extent, ShouldEqual, at(9))
		})
	})

	Convey("Given no events", t, func() {
		pl := projection.Project(nil, w, at(5))
		So(pl.Empty(), ShouldBeTrue)
		So(pl.Steps(), ShouldBeNil)
	})
}
