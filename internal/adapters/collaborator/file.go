package collaborator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/eldlog/internal/domain/axis"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/normalize"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
)

const fileTimeLayout = "2006-01-02T15:04:05"

// FileSource is a Source backed by a YAML file of status records. It
// applies the same ordering rule as the collaborator: a new record may not
// start before the latest one, and creating a record closes the open one.
type FileSource struct {
	path     string
	location *time.Location
	now      func() time.Time
	profile  model.DailyReport
	logger   logger.Logger

	mu sync.Mutex
}

// FileOption applies a configuration option to the FileSource.
type FileOption func(*FileSource)

// WithFileLocation sets the zone naive times in the file are read in.
func WithFileLocation(loc *time.Location) FileOption {
	return func(f *FileSource) {
		if loc != nil {
			f.location = loc
		}
	}
}

// WithFileClock overrides time.Now.
func WithFileClock(now func() time.Time) FileOption {
	return func(f *FileSource) {
		if now != nil {
			f.now = now
		}
	}
}

// WithReportProfile sets the carrier, vehicle and driver fields copied into
// every daily report.
func WithReportProfile(p model.DailyReport) FileOption {
	return func(f *FileSource) {
		f.profile = p
	}
}

// WithFileLogger sets a custom logger.
func WithFileLogger(l logger.Logger) FileOption {
	return func(f *FileSource) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFileSource creates a source over path. A missing file is an empty log.
func NewFileSource(path string, opts ...FileOption) *FileSource {
	f := &FileSource{path: path, location: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("file-source")
	}
	return f
}

// Path returns the backing file.
func (f *FileSource) Path() string { return f.path }

// ListStatusLogs reads every record in the file.
func (f *FileSource) ListStatusLogs(_ context.Context) ([]model.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
	}
	return records, nil
}

// CreateStatusLog appends a record and returns its id.
func (f *FileSource) CreateStatusLog(ctx context.Context, sub model.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, err)
	}

	at := sub.Time.In(f.location)
	nextID := 1
	for i := range records {
		if n, err := strconv.Atoi(records[i].ID.String()); err == nil && n >= nextID {
			nextID = n + 1
		}
		start, err := normalize.ParseTime(records[i].Time, f.location)
		if err != nil {
			continue
		}
		if at.Before(start) {
			return "", fmt.Errorf("%w: %w: new status time must be after the latest status time",
				model.ErrRemoteSubmitFailure, ErrRejected)
		}
	}

	// Close the open record at the new record's start.
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].EndTime.IsZero() {
			continue
		}
		start, err := normalize.ParseTime(records[i].Time, f.location)
		if err != nil {
			continue
		}
		records[i].EndTime = model.TextTime(at.Format(fileTimeLayout))
		hours := at.Sub(start).Hours()
		records[i].DurationHours = &hours
		break
	}

	id := strconv.Itoa(nextID)
	records = append(records, model.RawRecord{
		ID:            model.Ident(id),
		Status:        status.ToWire(sub.Status),
		StatusDisplay: status.Label(sub.Status),
		Time:          model.TextTime(at.Format(fileTimeLayout)),
		Trip:          model.Ident(sub.TripID),
	})
	if err := f.write(records); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, err)
	}

	f.logger.Debug(ctx, "status record appended",
		logger.String("id", id),
		logger.String("path", f.path),
	)
	return id, nil
}

// DailyReport sums closed record durations starting today, the way the
// collaborator does.
func (f *FileSource) DailyReport(_ context.Context) (model.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return model.DailyReport{}, fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
	}

	window := axis.DayWindowFor(f.now().In(f.location))
	hours := make(map[status.Status]float64, status.Count)
	for _, r := range records {
		st, ok := status.Match(r.Status)
		if !ok {
			continue
		}
		start, err := normalize.ParseTime(r.Time, f.location)
		if err != nil || !window.Contains(start) {
			continue
		}
		end, err := normalize.ParseTime(r.EndTime, f.location)
		if err != nil || end.Before(start) {
			continue
		}
		hours[st] += end.Sub(start).Hours()
	}

	report := f.profile
	date := window.Start.Format("2006-01-02")
	report.Name = "Daily Log for " + date
	report.Date = date
	report.DrivingHours = hours[status.Driving]
	report.OnDutyHours = hours[status.OnDuty]
	report.OffDutyHours = hours[status.OffDuty]
	report.SleeperBerthHours = hours[status.SleeperBerth]
	if report.Trips == nil {
		report.Trips = []model.TripSummary{}
	}
	return report, nil
}

func (f *FileSource) read() ([]model.RawRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.RawRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var records []model.RawRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if records == nil {
		records = []model.RawRecord{}
	}
	return records, nil
}

// write replaces the file atomically.
func (f *FileSource) write(records []model.RawRecord) error {
	data, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".eldlog-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
