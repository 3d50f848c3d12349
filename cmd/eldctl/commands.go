package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	"github.com/okian/eldlog/internal/adapters/report"
	"github.com/okian/eldlog/internal/adapters/tui"
	service "github.com/okian/eldlog/internal/app"
	"github.com/okian/eldlog/internal/domain/coordinator"
	"github.com/okian/eldlog/pkg/logger"
)

var errRolledBack = errors.New("status change rolled back")

func newRenderCmd(o *rootOptions) *cobra.Command {
	var cells int
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print today's timeline and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := o.start(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			out := cmd.OutOrStdout()
			_, err = fmt.Fprintln(out, tui.New(out, tui.WithCellsPerHour(cells)).Render(svc.Timeline(cmd.Context())))
			return err
		},
	}
	cmd.Flags().IntVar(&cells, "cells", 4, "grid cells per hour")
	return cmd
}

func newSubmitCmd(o *rootOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "submit STATUS TIME",
		Short: "Submit a status change and wait for the collaborator",
		Long: `Submit a status change. STATUS is a code or label such as driving or
"Off Duty"; TIME is local wall-clock time like 2024-03-01T08:00:00.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := o.start(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			op, err := svc.Submit(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			state, err := op.Wait(ctx)
			out := cmd.OutOrStdout()
			switch state {
			case coordinator.Confirmed:
				_, err = fmt.Fprintf(out, "%s confirmed as record %s\n", op.ID(), op.RemoteID())
				return err
			case coordinator.RolledBack:
				if err == nil {
					return errRolledBack
				}
				return fmt.Errorf("%w: %w", errRolledBack, err)
			default:
				return fmt.Errorf("operation %s still %s: %w", op.ID(), state, err)
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for confirmation")
	return cmd
}

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		dir    string
		width  int
		height int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write today's daily log workbook and raster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := report.NewFileSink(dir)
			if err != nil {
				return err
			}
			exp, err := report.NewExporter(sink, report.WithSize(width, height))
			if err != nil {
				return err
			}
			svc, err := o.start(cmd.Context(), service.WithExporter(exp))
			if err != nil {
				return err
			}
			defer svc.Stop()

			art, err := svc.Export(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, art.Document.Location); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, art.Raster.Location)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "out", "reports", "output directory")
	cmd.Flags().IntVar(&width, "width", 1200, "raster width in pixels")
	cmd.Flags().IntVar(&height, "height", 360, "raster height in pixels")
	return cmd
}

func newServeFileCmd(o *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-file",
		Short: "Serve a YAML status log over the collaborator API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.file == "" || o.baseURL != "" {
				return errors.New("serve-file needs --file and no --base-url")
			}
			loc, err := o.location()
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			src := collaborator.NewFileSource(o.file, collaborator.WithFileLocation(loc))
			return serve(cmd.Context(), ln, collaborator.NewServer(src, loc).Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	return cmd
}

// serve runs h on ln until ctx ends.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	log := logger.Get().Named("serve-file")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving status log", logger.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
