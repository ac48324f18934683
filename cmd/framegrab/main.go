// Package main provides the CLI entry point for framegrab.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/framegrab/pkg/adapters/httpapi"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/osfilesystem"
	"github.com/user/framegrab/pkg/config"
	"github.com/user/framegrab/pkg/framegrab"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/summarizer"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "framegrab",
		Usage:   l10n.T("Extract exact still frames from video files"),
		Version: version,
		Description: l10n.T("framegrab decodes only the frames needed for the requested timestamps " +
			"and writes them as JPEG images."),
		Flags: globalFlags(),
		Commands: []*cli.Command{
			extractCommand(),
			batchCommand(),
			probeCommand(),
			serveCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   l10n.T("YAML configuration file"),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T("Logging"),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"Q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T("Logging"),
		},
		&cli.BoolFlag{
			Name:     "debug",
			Aliases:  []string{"d"},
			Usage:    l10n.T("Enable debug output"),
			Category: l10n.T("Debug"),
		},
		&cli.StringFlag{
			Name:     "debug-dir",
			Usage:    l10n.T("Directory for debug output"),
			Category: l10n.T("Debug"),
		},
		&cli.StringFlag{
			Name:     "ffmpeg-path",
			Usage:    l10n.T("Path to the ffmpeg executable"),
			EnvVars:  []string{"FFMPEG_PATH"},
			Category: l10n.T("Decoding"),
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:     "quality",
			Aliases:  []string{"q"},
			Usage:    l10n.T("JPEG quality (1-100)"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "preset",
			Aliases:  []string{"p"},
			Usage:    l10n.T("Quality preset (low, medium, high)"),
			Category: l10n.T("Output"),
		},
		&cli.IntFlag{
			Name:     "max-width",
			Usage:    l10n.T("Downscale frames wider than this (0 = keep)"),
			Category: l10n.T("Output"),
		},
		&cli.BoolFlag{
			Name:     "labels",
			Usage:    l10n.T("Draw target labels onto the frames"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "font",
			Usage:    l10n.T("Font file for labels"),
			Category: l10n.T("Output"),
		},
		&cli.DurationFlag{
			Name:     "timeout",
			Usage:    l10n.T("Time budget per video"),
			Category: l10n.T("Extraction"),
		},
		&cli.DurationFlag{
			Name:     "tolerance",
			Usage:    l10n.T("Max distance between a timestamp and its frame"),
			Category: l10n.T("Extraction"),
		},
		&cli.BoolFlag{
			Name:     "no-fallback",
			Usage:    l10n.T("Do not fall back to whole-file ffmpeg seeking"),
			Category: l10n.T("Extraction"),
		},
	}
}

func sheetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     "sheet",
			Usage:    l10n.T("Also write a contact sheet of all frames"),
			Category: l10n.T("Contact sheet"),
		},
		&cli.IntFlag{
			Name:     "columns",
			Value:    framegrab.DefaultSheetOptions().Columns,
			Usage:    l10n.T("Frames per contact sheet row"),
			Category: l10n.T("Contact sheet"),
		},
		&cli.IntFlag{
			Name:     "cell-width",
			Value:    framegrab.DefaultSheetOptions().CellWidth,
			Usage:    l10n.T("Width of each contact sheet cell"),
			Category: l10n.T("Contact sheet"),
		},
	}
}

func sheetOptions(c *cli.Context) framegrab.SheetOptions {
	return framegrab.SheetOptions{
		Columns:   c.Int("columns"),
		CellWidth: c.Int("cell-width"),
		Captions:  true,
	}
}

// settings is the resolved configuration for one command run.
type settings struct {
	cfg    config.Config
	logger ports.Logger
}

// loadSettings merges defaults, the config file, the environment and the
// command line, in that order.
func loadSettings(c *cli.Context) (settings, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return settings{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg, ".env"); err != nil {
		return settings{}, err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("preset") {
		cfg.Quality = framegrab.PresetQuality(framegrab.QualityPreset(c.String("preset")))
	}
	if c.IsSet("quality") {
		cfg.Quality = c.Int("quality")
	}
	if c.IsSet("max-width") {
		cfg.MaxWidth = c.Int("max-width")
	}
	if c.IsSet("labels") {
		cfg.Labels = c.Bool("labels")
	}
	if c.IsSet("font") {
		cfg.FontPath = c.String("font")
	}
	if c.IsSet("timeout") {
		cfg.TimeoutMs = int(c.Duration("timeout").Milliseconds())
	}
	if c.IsSet("tolerance") {
		cfg.ToleranceMs = int(c.Duration("tolerance").Milliseconds())
	}
	if c.Bool("no-fallback") {
		cfg.Fallback = false
	}

	var log ports.Logger
	if c.Bool("quiet") {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
	}
	return settings{cfg: cfg, logger: log}, nil
}

func (s settings) extractor() *framegrab.Extractor {
	return framegrab.New(s.cfg.ToFramegrabConfig(), s.logger, s.cfg.DebugOutputDir())
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     l10n.T("Extract frames at the given timestamps"),
		ArgsUsage: "<video>",
		Flags: append([]cli.Flag{
			&cli.Float64SliceFlag{
				Name:     "at",
				Aliases:  []string{"t"},
				Usage:    l10n.T("Timestamp in seconds (repeatable)"),
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "label",
				Usage: l10n.T("Label for the timestamp at the same position (repeatable)"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   l10n.T("Output directory"),
			},
		}, append(outputFlags(), sheetFlags()...)...),
		Action: runExtract,
	}
}

func runExtract(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New(l10n.T("A video argument is required"))
	}
	video := c.Args().First()

	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	labels := c.StringSlice("label")
	targets := pipeline.NewTargets(c.Float64Slice("at")...)
	for i := range targets {
		if i < len(labels) {
			targets[i].Label = labels[i]
		}
	}

	s.logger.Info("Extracting %d frames from %s", len(targets), video)
	x := s.extractor()
	result, err := x.ExtractFile(c.Context, video, targets)
	if err != nil {
		return err
	}
	if c.Context.Err() != nil {
		s.logger.Warn("Interrupted, shutting down...")
	}

	out, base := c.String("output"), debugBase(video)
	if err := writeShots(s.logger, out, base, result); err != nil {
		return err
	}
	if c.Bool("sheet") {
		return writeSheet(c, x, s.logger, out, base, result)
	}
	return nil
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     l10n.T("Extract frames for every video of a YAML manifest"),
		ArgsUsage: "<manifest.yaml>",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"j"},
				Usage:   l10n.T("Videos processed at the same time"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   l10n.T("Output directory for jobs without their own"),
			},
			&cli.StringFlag{
				Name:  "summary",
				Usage: l10n.T("Write a Markdown summary of the run to this file"),
			},
		}, append(outputFlags(), sheetFlags()...)...),
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New(l10n.T("A manifest argument is required"))
	}
	path := c.Args().First()

	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	manifest, err := framegrab.ParseManifest(data, filepath.Dir(path))
	if err != nil {
		return err
	}

	concurrency := s.cfg.Concurrency
	if manifest.Concurrency > 0 {
		concurrency = manifest.Concurrency
	}
	if c.IsSet("concurrency") {
		concurrency = c.Int("concurrency")
	}

	s.logger.Info("Running %d jobs with concurrency %d", len(manifest.Jobs), concurrency)
	started := time.Now()
	x := s.extractor()
	results, err := x.Batch(c.Context, manifest.ToJobs(), concurrency)

	report := summarizer.NewBuilder().WithSettings(summarySettings(x.Config(), concurrency))
	failed := 0
	for i, r := range results {
		report.AddJob(summarizer.NewJobInfo(r.Job.Name, r.Job.Path, r.Result, r.Err))
		if r.Err != nil {
			failed++
			continue
		}
		out := manifest.Jobs[i].Output
		if out == "" {
			out = filepath.Join(c.String("output"), r.Job.Name)
		}
		werr := writeShots(s.logger, out, r.Job.Name, r.Result)
		if werr == nil && c.Bool("sheet") {
			werr = writeSheet(c, x, s.logger, out, r.Job.Name, r.Result)
		}
		if werr != nil {
			s.logger.Error("Failed to write frames for %s: %v", r.Job.Name, werr)
			failed++
		}
	}
	s.logger.Info("Batch finished: %d of %d jobs succeeded", len(results)-failed, len(results))

	if path := c.String("summary"); path != "" {
		w := summarizer.NewWriter(summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(func(key string) string { return l10n.T(key) }),
			summarizer.WithVersion(version),
		), osfilesystem.New())
		if werr := w.Write(path, report.WithDuration(time.Since(started)).Build()); werr != nil {
			return werr
		}
		s.logger.Info("Summary written to %s", path)
	}

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf(l10n.T("%d jobs failed"), failed)
	}
	return nil
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Show the video track of a file"),
		ArgsUsage: "<video>",
		Action:    runProbe,
	}
}

func runProbe(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New(l10n.T("A video argument is required"))
	}

	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	source, err := osfilesystem.New().Open(c.Args().First())
	if err != nil {
		return err
	}
	defer source.Close()

	res, err := s.extractor().Probe(c.Context, source)
	if err != nil {
		return err
	}

	decoder := res.Decoder
	if decoder == "" {
		decoder = l10n.T("none")
	}
	w := c.App.Writer
	fmt.Fprintf(w, "%-12s %s (%s)\n", l10n.T("Codec")+":", res.Track.CodecString, res.Track.SampleEntry)
	fmt.Fprintf(w, "%-12s %dx%d\n", l10n.T("Size")+":", res.Track.Width, res.Track.Height)
	fmt.Fprintf(w, "%-12s %d\n", l10n.T("Timescale")+":", res.Track.Timescale)
	fmt.Fprintf(w, "%-12s %d (%d %s)\n", l10n.T("Samples")+":", res.Samples, res.SyncSamples, l10n.T("sync"))
	fmt.Fprintf(w, "%-12s %.3fs\n", l10n.T("Duration")+":", res.Seconds)
	fmt.Fprintf(w, "%-12s %s\n", l10n.T("Decoder")+":", decoder)
	if res.Damaged {
		fmt.Fprintln(w, l10n.T("The file is damaged; only the readable part was indexed."))
	}
	return nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: l10n.T("Serve the extraction HTTP API"),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: l10n.T("Port to listen on"),
			},
			&cli.StringSliceFlag{
				Name:  "allowed-origin",
				Usage: l10n.T("Origin allowed by CORS (repeatable)"),
			},
			&cli.Int64Flag{
				Name:  "upload-limit",
				Usage: l10n.T("Max upload size in bytes"),
			},
		}, outputFlags()...),
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		s.cfg.Server.Port = c.String("port")
	}
	if c.IsSet("allowed-origin") {
		s.cfg.Server.AllowedOrigins = c.StringSlice("allowed-origin")
	}
	if c.IsSet("upload-limit") {
		s.cfg.Server.UploadLimit = c.Int64("upload-limit")
	}

	srv := httpapi.New(s.extractor(), s.logger, httpapi.Options{
		AllowedOrigins:  s.cfg.Server.AllowedOrigins,
		UploadLimit:     s.cfg.Server.UploadLimit,
		MultipartMemory: s.cfg.Server.MultipartMemory,
	})
	return srv.ListenAndServe(c.Context, ":"+s.cfg.Server.Port)
}

// writeShots writes present shots as <base>-<index>-<ms>ms.jpg.
func writeShots(log ports.Logger, dir, base string, result pipeline.Result) error {
	fs := osfilesystem.New()
	written := 0
	for i, shot := range result.Shots {
		if !shot.Present() {
			log.Warn("No frame for %.3fs", shot.Target.Seconds)
			continue
		}
		name := fmt.Sprintf("%s-%02d-%dms.jpg", base, i, shot.TimestampUs/1000)
		if err := fs.WriteFile(filepath.Join(dir, name), shot.Image); err != nil {
			return err
		}
		written++
	}
	log.Info("Wrote %d of %d frames to %s", written, len(result.Shots), dir)
	return nil
}

// writeSheet writes the contact sheet of result as <base>-sheet.jpg.
func writeSheet(c *cli.Context, x *framegrab.Extractor, log ports.Logger, dir, base string, result pipeline.Result) error {
	sheet, err := x.ContactSheet(c.Context, result, sheetOptions(c))
	if err != nil {
		return err
	}
	if len(sheet.Image) == 0 {
		return nil
	}
	path := filepath.Join(dir, base+"-sheet.jpg")
	if err := osfilesystem.New().WriteFile(path, sheet.Image); err != nil {
		return err
	}
	log.Info("Wrote contact sheet %s (%dx%d)", path, sheet.Width, sheet.Height)
	return nil
}

func summarySettings(cfg framegrab.Config, concurrency int) summarizer.Settings {
	return summarizer.Settings{
		Quality:     cfg.Quality,
		MaxWidth:    cfg.MaxWidth,
		Tolerance:   cfg.Tolerance,
		Timeout:     cfg.Timeout,
		Fallback:    cfg.Fallback,
		Concurrency: concurrency,
	}
}

func debugBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
