// Package driver discovers daily observation files and fans them out over a
// worker pool, producing one summary file per input file.
package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"ontime.transitperf.org/internal/align"
	"ontime.transitperf.org/internal/clock"
	"ontime.transitperf.org/internal/feed"
	"ontime.transitperf.org/internal/logging"
	"ontime.transitperf.org/internal/metrics"
	"ontime.transitperf.org/internal/obs"
)

var (
	yearDirPattern  = regexp.MustCompile(`^\d{4}$`)
	dataFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.csv(\.gz)?$`)
)

// Uploader pushes a finished summary file to downstream storage. The driver
// itself only writes the local file; uploading is optional.
type Uploader interface {
	Upload(ctx context.Context, localPath string) error
}

// Task pairs one input observation file with its service date and the
// summary path it produces.
type Task struct {
	InputPath  string
	OutputPath string
	Date       time.Time
}

// Config wires a Driver.
type Config struct {
	InputDir  string
	OutputDir string
	Workers   int
	Location  *time.Location
	Verbose   bool
	Resolver  *feed.Resolver
	Metrics   *metrics.Metrics
	Uploader  Uploader
}

// Driver runs the summarization batch.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Driver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Driver{
		cfg:    cfg,
		logger: slog.Default().With(slog.String("component", "driver")),
	}
}

// Discover walks the input tree for daily observation files. Only
// four-digit year directories under the input root are searched; within
// them any YYYY-mm-dd.csv or .csv.gz file is a task. Results are sorted by
// input path.
func (d *Driver) Discover() ([]Task, error) {
	entries, err := os.ReadDir(d.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("reading input dir: %w", err)
	}
	var tasks []Task
	for _, e := range entries {
		if !e.IsDir() || !yearDirPattern.MatchString(e.Name()) {
			continue
		}
		root := filepath.Join(d.cfg.InputDir, e.Name())
		err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if de.IsDir() {
				return nil
			}
			m := dataFilePattern.FindStringSubmatch(de.Name())
			if m == nil {
				return nil
			}
			date, err := time.ParseInLocation("2006-01-02", m[1], d.cfg.Location)
			if err != nil {
				return nil
			}
			tasks = append(tasks, Task{
				InputPath:  path,
				OutputPath: filepath.Join(d.cfg.OutputDir, "summary", m[1]+".csv"),
				Date:       date,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	// WalkDir yields lexical order per year dir; year dirs from ReadDir
	// are already sorted, so tasks come out in date order.
	return tasks, nil
}

// Run processes every discovered file across the worker pool. A failed file
// is logged and counted, never fatal to the batch; all workers share the
// driver's feed resolver so each schedule archive downloads once.
func (d *Driver) Run(ctx context.Context) error {
	tasks, err := d.Discover()
	if err != nil {
		return err
	}
	logging.LogOperation(d.logger, "batch_start",
		slog.Int("files", len(tasks)),
		slog.Int("workers", d.cfg.Workers))

	taskCh := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				d.processTask(ctx, task)
			}
		}()
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case taskCh <- task:
		}
	}
	close(taskCh)
	wg.Wait()
	return nil
}

func (d *Driver) processTask(ctx context.Context, task Task) {
	start := time.Now()
	err := d.ProcessFile(ctx, task)
	if m := d.cfg.Metrics; m != nil {
		m.FileDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			m.FilesFailed.Inc()
		} else {
			m.FilesProcessed.Inc()
		}
	}
	if err != nil {
		logging.LogError(d.logger, "file processing failed", err,
			slog.String("path", task.InputPath))
	}
}

// ProcessFile summarizes one observation file into its summary file. Output
// is deterministic for a given input and schedule, so rerunning a file
// rewrites identical bytes.
func (d *Driver) ProcessFile(ctx context.Context, task Task) error {
	records, err := obs.Load(task.InputPath, task.Date, d.cfg.Location)
	if err != nil {
		return err
	}
	idx, err := d.cfg.Resolver.ScheduleFor(ctx, task.Date)
	if err != nil {
		return err
	}

	anchor := clock.ServiceDayStart(task.Date, d.cfg.Location)
	summaries := align.Summarize(records, idx, anchor, d.cfg.Location)
	if d.cfg.Verbose {
		d.logger.Debug("trip summaries",
			slog.String("path", task.InputPath),
			slog.String("dump", spew.Sdump(summaries)))
	}

	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return fmt.Errorf("creating summary dir: %w", err)
	}
	out, err := os.Create(task.OutputPath)
	if err != nil {
		return fmt.Errorf("creating summary file: %w", err)
	}
	if err := align.WriteCSV(out, summaries); err != nil {
		_ = out.Close()
		return fmt.Errorf("writing summary for %s: %w", task.InputPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing summary file: %w", err)
	}

	if m := d.cfg.Metrics; m != nil {
		m.TripsSummarized.Add(float64(len(summaries)))
	}
	logging.LogOperation(d.logger, "file_summarized",
		slog.String("input", task.InputPath),
		slog.String("output", task.OutputPath),
		slog.Int("trips", len(summaries)))

	if d.cfg.Uploader != nil {
		if err := d.cfg.Uploader.Upload(ctx, task.OutputPath); err != nil {
			logging.LogError(d.logger, "summary upload failed", err,
				slog.String("path", task.OutputPath))
		}
	}
	return nil
}
