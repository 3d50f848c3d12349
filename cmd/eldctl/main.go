// eldctl inspects and edits a duty status log from the terminal, either
// against a collaborator service or a local YAML file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	service "github.com/okian/eldlog/internal/app"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/pkg/logger"
)

var errSource = errors.New("exactly one of --base-url or --file is required")

// rootOptions are the flags every command shares.
type rootOptions struct {
	baseURL string
	file    string
	trip    string
	tz      string
	timeout time.Duration
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "eldctl",
		Short: "Inspect and edit a duty status log",
		Long: `eldctl renders today's duty status timeline, submits status changes and
exports the daily log.

Examples:
  eldctl --base-url http://localhost:8000 render
  eldctl --file log.yaml submit driving 2024-03-01T08:00:00
  eldctl --file log.yaml export --out reports
  eldctl --file log.yaml serve-file --addr :8000`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
				return err
			}
			level := "warn"
			if o.verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.baseURL, "base-url", "", "collaborator base URL")
	f.StringVar(&o.file, "file", "", "YAML status log used instead of a collaborator")
	f.StringVar(&o.trip, "trip", "", "trip id attached to submitted changes")
	f.StringVar(&o.tz, "tz", "", "IANA timezone of the day window (default local)")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "collaborator request timeout")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRenderCmd(o),
		newSubmitCmd(o),
		newExportCmd(o),
		newServeFileCmd(o),
	)
	return root
}

func (o *rootOptions) location() (*time.Location, error) {
	if o.tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(o.tz)
	if err != nil {
		return nil, fmt.Errorf("--tz: %w", err)
	}
	return loc, nil
}

func (o *rootOptions) session() (*model.Session, error) {
	loc, err := o.location()
	if err != nil {
		return nil, err
	}
	return model.NewSession(o.trip, loc), nil
}

func (o *rootOptions) source(session *model.Session) (collaborator.Source, error) {
	switch {
	case (o.baseURL == "") == (o.file == ""):
		return nil, errSource
	case o.file != "":
		return collaborator.NewFileSource(o.file, collaborator.WithFileLocation(session.Location())), nil
	}
	client, err := collaborator.New(o.baseURL,
		collaborator.WithTimeout(o.timeout),
		collaborator.WithSession(session),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// start runs a short-lived service against the configured source. The
// caller stops it.
func (o *rootOptions) start(ctx context.Context, opts ...service.Option) (*service.Service, error) {
	session, err := o.session()
	if err != nil {
		return nil, err
	}
	src, err := o.source(session)
	if err != nil {
		return nil, err
	}
	opts = append([]service.Option{
		service.WithSession(session),
		service.WithWorkerCount(1),
		service.WithRequestTimeout(o.timeout),
		service.WithLogger(logger.Get().Named("eldctl")),
	}, opts...)

	svc := service.New(src, opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
