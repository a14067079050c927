package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/config"
	"github.com/vatsal3003/upscale-client/internal/jobs"
	"github.com/vatsal3003/upscale-client/internal/logging"
	"github.com/vatsal3003/upscale-client/internal/preview"
	"github.com/vatsal3003/upscale-client/internal/queue"
	"github.com/vatsal3003/upscale-client/internal/rabbitmq"
	"github.com/vatsal3003/upscale-client/internal/results"
	"github.com/vatsal3003/upscale-client/internal/staging"
	"github.com/vatsal3003/upscale-client/internal/upscale"
	"github.com/vatsal3003/upscale-client/pkg/models"
)

const cancelTimeout = 10 * time.Second

type options struct {
	video    bool
	frames   bool
	sync     bool
	download bool
	format   string
	mode     string
	value    float64
	model    string
	out      string
}

func main() {
	var opts options
	flag.BoolVar(&opts.video, "video", false, "extract frames from a single video instead of upscaling images")
	flag.BoolVar(&opts.frames, "frames", false, "upscale the extracted frames (with -video)")
	flag.BoolVar(&opts.sync, "sync", false, "use the synchronous endpoint instead of a tracked job")
	flag.BoolVar(&opts.download, "download", false, "download every produced asset into DOWNLOAD_DIR")
	flag.StringVar(&opts.format, "format", "", "export format (png, jpg, jpeg, webp, bmp)")
	flag.StringVar(&opts.mode, "mode", "", "resolution mode (multiplier, absolute)")
	flag.Float64Var(&opts.value, "value", 0, "resolution value")
	flag.StringVar(&opts.model, "model", "", "model name")
	flag.StringVar(&opts.out, "out", "", "output directory on the service")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := checkArgs(opts, flag.Args()); err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.NewConfig()
	logger := logging.New(cfg.Logs)
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, opts, flag.Args()); err != nil {
		logger.Error().Err(err).Msg("upscale failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts options, paths []string) error {
	client := upscale.NewClient(cfg.ServiceURL, cfg.HTTPTimeout, logger)

	serverCfg, err := client.GetConfig(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load service config, using defaults")
	}
	settings := opts.apply(models.DefaultSettings(serverCfg))

	uploads := make([]models.Upload, 0, len(paths))
	for _, p := range paths {
		uploads = append(uploads, models.NewUpload(p))
	}

	set := staging.NewUploadSet(preview.NewRenderer(cfg.PreviewSize, cfg.PreviewDir), func(p preview.Preview) {
		logPreview(logger, p)
	})
	if opts.video && len(uploads) > 0 {
		set.SelectVideo(uploads[0])
	} else {
		set.Select(uploads)
	}
	set.Wait()

	projection := results.Options{
		BaseURL:   cfg.ServiceURL,
		OutputDir: settings.OutputDirectory,
	}
	if projection.OutputDir == "" {
		projection.OutputDir = serverCfg.DefaultOutputDir()
	}

	var items []models.ItemResult
	switch {
	case opts.video:
		items, err = runExtract(ctx, client, set, settings, opts.frames)
	case opts.sync:
		if err := settings.Validate(); err != nil {
			return &upscale.ValidationError{Msg: err.Error()}
		}
		items, err = client.Upscale(ctx, set.Snapshot(), settings)
	default:
		items, err = runJob(ctx, cfg, client, logger, set, settings)
	}
	if err != nil {
		return err
	}

	records := results.Project(items, projection)
	printRecords(os.Stdout, records)

	if opts.download {
		return downloadAll(ctx, client, cfg.DownloadDir, records, logger)
	}
	return nil
}

func checkArgs(opts options, paths []string) error {
	if opts.video && len(paths) > 1 {
		return fmt.Errorf("-video takes exactly one file, got %d", len(paths))
	}
	if opts.frames && !opts.video {
		return errors.New("-frames requires -video")
	}
	if opts.video && opts.sync {
		return errors.New("-video and -sync cannot be combined")
	}
	return nil
}

func (o options) apply(s models.SubmissionSettings) models.SubmissionSettings {
	if o.format != "" {
		s.ExportFormat = o.format
	}
	if o.mode != "" {
		s.ResolutionMode = o.mode
	}
	if o.value != 0 {
		s.ResolutionValue = o.value
	}
	if o.model != "" {
		s.ModelName = o.model
	}
	if o.out != "" {
		s.OutputDirectory = o.out
	}
	return s
}

func runExtract(ctx context.Context, client *upscale.Client, set *staging.UploadSet, settings models.SubmissionSettings, frames bool) ([]models.ItemResult, error) {
	var video models.Upload
	if set.Video() && set.Len() == 1 {
		video = set.Snapshot()[0]
	}

	res, err := client.Extract(ctx, video, settings, frames)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Extracted %d frames\n", res.ExtractedCount)
	return res.UpscaledResults, nil
}

// runJob submits the staged files as a tracked job and waits for it. An
// interrupt cancels the job.
func runJob(ctx context.Context, cfg *config.Config, client *upscale.Client, logger zerolog.Logger, set *staging.UploadSet, settings models.SubmissionSettings) ([]models.ItemResult, error) {
	observers, closeObservers, err := eventObservers(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeObservers()
	observers = append(observers, &progressPrinter{w: os.Stdout})

	controller := jobs.NewController(client, jobs.Options{
		PollInterval: cfg.PollInterval,
		Logger:       logger,
		Observers:    observers,
	})

	if _, err := controller.Submit(ctx, set.Snapshot(), settings); err != nil {
		return nil, err
	}

	// Observers stay open until the watcher, and any Cancel it started, returns.
	done := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
			defer cancel()

			_, err := controller.Cancel(cancelCtx)
			var warn *jobs.CancelWarning
			if errors.As(err, &warn) {
				fmt.Fprintln(os.Stderr, "Cancellation was not confirmed by the service; the job may still finish.")
			}
		case <-done:
		}
	}()

	out, err := controller.Wait(context.Background())
	close(done)
	<-watched
	if err != nil {
		return nil, err
	}

	switch out.State {
	case jobs.StateCompleted:
		return out.Status.Results, nil
	case jobs.StateCancelled:
		fmt.Println("Job cancelled")
		return nil, nil
	default:
		return nil, out.Err
	}
}

// eventObservers connects the configured event backend.
func eventObservers(cfg *config.Config, logger zerolog.Logger) ([]jobs.Observer, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsRabbitMQ:
		publisher, err := rabbitmq.NewEventPublisher(cfg.Events.RabbitMQURL, cfg.Events.Exchange, logger)
		if err != nil {
			return nil, nil, err
		}
		return []jobs.Observer{publisher}, publisher.Close, nil
	case config.EventsRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
		})
		events := queue.NewRedisEvents(client, cfg.Events.Redis.List, logger)
		return []jobs.Observer{events}, func() { client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
