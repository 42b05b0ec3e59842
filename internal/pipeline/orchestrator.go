package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/the-deep/deeptree/internal/config"
	"github.com/the-deep/deeptree/internal/parser"
	"github.com/the-deep/deeptree/internal/platform"
	"github.com/the-deep/deeptree/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("pipeline stopped")

// Orchestrator manages the tree import pipeline.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	store    store.Store
	platform *platform.Client
	log      *slog.Logger
	cfg      config.Config
	opts     parser.Options

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped and sends on queue.
	mu      sync.Mutex
	stopped bool
}

// NewOrchestrator creates the pipeline. pc may be nil when no platform is
// configured; platform jobs then fail.
func NewOrchestrator(cfg config.Config, st store.Store, pc *platform.Client, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		store:    st,
		platform: pc,
		log:      log,
		cfg:      cfg,
		opts:     parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.store, o.platform, o.jobs, o.log, o.opts)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. Later calls are no-ops.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	if job.Source == SourcePlatform && o.platform == nil {
		return ErrPlatformDisabled
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// Upload is one file of a batch.
type Upload struct {
	Filename string
	Title    string
	Data     []byte
}

// BatchResult reports the outcome of one batch file.
type BatchResult struct {
	Filename string `json:"filename"`
	JobID    string `json:"job_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SubmitBatch parses the files concurrently, bounded by the worker count, and
// queues a job for each file that parsed. Files that fail to parse are
// reported without a job.
func (o *Orchestrator) SubmitBatch(ctx context.Context, uploads []Upload) ([]BatchResult, error) {
	results := make([]BatchResult, len(uploads))
	jobs := make([]*Job, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.WorkerCount, 1))
	for i, u := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].Filename = u.Filename
			root, err := ParseFile(u.Filename, u.Data, o.opts)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			job := NewUploadJob(u.Filename, u.Title, u.Data)
			job.setRoot(root)
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}

	for i, job := range jobs {
		if job == nil {
			continue
		}
		if err := o.Submit(job); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].JobID = job.ID
		results[i].Status = string(StatusQueued)
	}
	return results, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Platform returns the platform client, nil when unconfigured.
func (o *Orchestrator) Platform() *platform.Client {
	return o.platform
}
