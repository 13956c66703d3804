package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/offline"
	"github.com/noah-isme/citizen-safety-api/pkg/config"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/logger"
)

const usage = `usage: reporter <command> [flags]

commands:
  submit   send an issue, queuing it when the server is unreachable
  sync     submit every queued issue once
  queue    list queued issues (-clear drops them)
  watch    keep syncing on an interval until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Reporter, logr, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		appErr := appErrors.FromError(err)
		fmt.Fprintf(os.Stderr, "%s: %s\n", appErr.Code, appErr.Message)
		os.Exit(1)
	}
}

type agent struct {
	queue    *offline.Queue
	engine   *offline.Engine
	reporter *offline.Reporter
}

func newAgent(ctx context.Context, cfg config.ReporterConfig, logr *zap.Logger) (*agent, error) {
	queue, err := offline.OpenQueue(ctx, cfg.QueuePath, logr)
	if err != nil {
		return nil, err
	}
	client := &http.Client{}
	probe := offline.NewHTTPProbe(cfg.APIBaseURL, cfg.ProbeTimeout, client)
	api := offline.NewAPIClient(cfg.APIBaseURL, cfg.Token, client)
	return &agent{
		queue:    queue,
		engine:   offline.NewEngine(queue, probe, api, cfg.ItemTimeout, logr),
		reporter: offline.NewReporter(api, probe, queue, nil, cfg.MaxImages, logr),
	}, nil
}

func run(ctx context.Context, cfg config.ReporterConfig, logr *zap.Logger, command string, args []string, out io.Writer) error {
	switch command {
	case "submit", "sync", "queue", "watch":
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown command %q", command))
	}

	a, err := newAgent(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.queue.Close()

	switch command {
	case "submit":
		req, err := parseSubmit(args)
		if err != nil {
			return err
		}
		res, err := a.reporter.Submit(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	case "sync":
		// A foreground sync is an explicit user action, so it counts as authenticated.
		res, err := a.engine.OnResume(ctx, true)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	case "queue":
		fs := flag.NewFlagSet("queue", flag.ContinueOnError)
		clearAll := fs.Bool("clear", false, "drop every queued issue")
		if err := fs.Parse(args); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid flags")
		}
		if *clearAll {
			return a.queue.Clear(ctx)
		}
		items, err := a.queue.List(ctx)
		if err != nil {
			return err
		}
		if dead, err := a.queue.DeadLetters(ctx); err == nil && dead > 0 {
			logr.Warn("unreadable items set aside", zap.Int("dead_letters", dead))
		}
		return printJSON(out, items)
	default:
		logr.Info("watching offline queue", zap.Duration("interval", cfg.SyncInterval))
		a.engine.Run(ctx, cfg.SyncInterval, nil)
		return nil
	}
}

func parseSubmit(args []string) (dto.CreateIssueRequest, error) {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	title := fs.String("title", "", "short summary")
	description := fs.String("description", "", "what happened")
	category := fs.String("category", "", "issue category")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	contactName := fs.String("contact-name", "", "optional contact name")
	contactPhone := fs.String("contact-phone", "", "optional contact phone")
	var images imageFlags
	fs.Var(&images, "image", "image file to attach (repeatable)")

	if err := fs.Parse(args); err != nil {
		return dto.CreateIssueRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid flags")
	}

	req := dto.CreateIssueRequest{
		Title:       *title,
		Description: *description,
		Category:    *category,
		Images:      images,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			req.LocationLat = lat
		case "lng":
			req.LocationLng = lng
		case "contact-name":
			req.ContactName = contactName
		case "contact-phone":
			req.ContactPhone = contactPhone
		}
	})
	return req, nil
}

// imageFlags reads each -image path into a data URI.
type imageFlags []string

func (f *imageFlags) String() string { return fmt.Sprintf("%d images", len(*f)) }

func (f *imageFlags) Set(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("image file is empty")
	}
	*f = append(*f, "data:"+http.DetectContentType(raw)+";base64,"+base64.StdEncoding.EncodeToString(raw))
	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
