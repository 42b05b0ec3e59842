package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/the-deep/deeptree/internal/store"
	"github.com/the-deep/deeptree/internal/tree"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusParsing    JobStatus = "parsing"
	StatusValidating JobStatus = "validating"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDupSkipped
}

// Source kinds.
const (
	SourceUpload   = "upload"
	SourcePlatform = "platform"
)

// Job tracks the state of a single tree import.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Source   string    `json:"source"`
	Filename string    `json:"filename,omitempty"`
	Title    string    `json:"title"`

	// Platform imports.
	FrameworkID string `json:"framework_id,omitempty"`
	WidgetKey   string `json:"widget_key,omitempty"`

	Nodes int `json:"nodes"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	root     *tree.Node
	errors   []string
}

// NewUploadJob creates a queued job for an uploaded file.
func NewUploadJob(filename, title string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          NewJobID(),
		Status:      StatusQueued,
		Phase:       "queued",
		Source:      SourceUpload,
		Filename:    filename,
		Title:       title,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// NewPlatformJob creates a queued job that fetches an organigram widget.
func NewPlatformJob(frameworkID, widgetKey, title string) *Job {
	now := time.Now()
	return &Job{
		ID:          NewJobID(),
		Status:      StatusQueued,
		Phase:       "queued",
		Source:      SourcePlatform,
		Title:       title,
		FrameworkID: frameworkID,
		WidgetKey:   widgetKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewJobID returns a time-ordered job ID.
func NewJobID() string {
	return "job_" + store.NewID()
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// CompletedByHash returns the document of an earlier completed upload with
// the same content, other than the job excluded.
func (s *JobStore) CompletedByHash(hash, exclude string) (string, bool) {
	if hash == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if id == exclude {
			continue
		}
		snap := job.Snapshot()
		if snap.ContentHash == hash && snap.Status == StatusCompleted {
			return snap.DocID, true
		}
	}
	return "", false
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// Fail records err and marks the job failed in phase.
func (j *Job) Fail(phase string, err error) {
	j.AddError(fmt.Sprintf("%s: %s", phase, err))
	j.SetStatus(StatusFailed, phase)
}

// Complete records the stored document.
func (j *Job) Complete(docID string, nodes int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DocID = docID
	j.Nodes = nodes
	j.Status = StatusCompleted
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// setRoot attaches a tree parsed ahead of queueing.
func (j *Job) setRoot(root *tree.Node) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.root = root
}

func (j *Job) parsedRoot() *tree.Node {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.root
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Source      string    `json:"source"`
	Filename    string    `json:"filename,omitempty"`
	Title       string    `json:"title,omitempty"`
	FrameworkID string    `json:"framework_id,omitempty"`
	WidgetKey   string    `json:"widget_key,omitempty"`
	Nodes       int       `json:"nodes"`
	ContentHash string    `json:"content_hash,omitempty"`
	Errors      []string  `json:"errors"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.errors...)
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Phase:       j.Phase,
		Source:      j.Source,
		Filename:    j.Filename,
		Title:       j.Title,
		FrameworkID: j.FrameworkID,
		WidgetKey:   j.WidgetKey,
		Nodes:       j.Nodes,
		ContentHash: j.ContentHash,
		Errors:      errs,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
