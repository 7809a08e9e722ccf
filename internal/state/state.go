package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// DefaultKey is the object holding the state document.
const DefaultKey = "state.json"

const formatVersion = 1

// ErrCorrupt is reported when the persisted document cannot be read or
// decoded. The store continues with empty state.
var ErrCorrupt = errors.New("state: persisted state is unreadable")

// Status is the lifecycle state of a single file.
type Status string

const (
	// Pending means no bytes have been accepted yet in any run.
	Pending Status = "pending"
	// InProgress means a transfer started; the partial file may be resumed.
	InProgress Status = "in_progress"
	// Completed means the final file was written and renamed into place.
	Completed Status = "completed"
	// Failed means the last run gave up on the file.
	Failed Status = "failed"
)

// FileProgress is the persisted record for one file.
type FileProgress struct {
	Name string `json:"name"`

	// TotalSize is the remote size, nil until known.
	TotalSize *int64 `json:"total_size,omitempty"`

	// DownloadedBytes is the length of the partial or final file on disk
	// as of the last checkpoint.
	DownloadedBytes int64 `json:"downloaded_bytes"`

	Status    Status    `json:"status"`
	ETag      string    `json:"etag,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a pending record for name.
func New(name string) FileProgress {
	return FileProgress{Name: name, Status: Pending}
}

// ExpectedSize returns TotalSize when known, otherwise DownloadedBytes.
func (p FileProgress) ExpectedSize() int64 {
	if p.TotalSize != nil {
		return *p.TotalSize
	}
	return p.DownloadedBytes
}

// SetTotal records a known remote size.
func (p *FileProgress) SetTotal(n int64) {
	p.TotalSize = &n
}

// document is the on-storage format.
type document struct {
	Version   int                     `json:"version"`
	RunID     string                  `json:"run_id"`
	UpdatedAt time.Time               `json:"updated_at"`
	Files     map[string]FileProgress `json:"files"`
}

// Options configures a Store.
type Options struct {
	Key  string
	Warn func(err error)
}

// Option is a functional option for Open.
type Option func(*Options)

// WithKey sets the object key of the state document.
func WithKey(key string) Option {
	return func(o *Options) {
		o.Key = key
	}
}

// WithWarn sets the callback receiving recoverable problems such as a
// corrupt state document.
func WithWarn(fn func(err error)) Option {
	return func(o *Options) {
		o.Warn = fn
	}
}

// Store holds per-file progress in memory and persists it to a bucket.
// It is safe for concurrent use.
type Store struct {
	bucket *blob.Bucket
	opts   Options
	runID  string

	// writeMu serialises persistence so documents land in update order.
	writeMu sync.Mutex

	mu      sync.Mutex
	entries map[string]FileProgress
}

// Open creates a store on bucket and loads any existing state.
func Open(ctx context.Context, bucket *blob.Bucket, options ...Option) (*Store, error) {
	opts := Options{Key: DefaultKey}
	for _, opt := range options {
		opt(&opts)
	}

	s := &Store{
		bucket:  bucket,
		opts:    opts,
		runID:   uuid.NewString(),
		entries: make(map[string]FileProgress),
	}

	entries, err := s.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		s.warn(err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	return s, nil
}

// RunID identifies this process's writes in the state document.
func (s *Store) RunID() string {
	return s.runID
}

// Load reads the persisted mapping. A missing document yields an empty map.
// An unreadable document yields an empty map and an error wrapping
// ErrCorrupt.
func (s *Store) Load(ctx context.Context) (map[string]FileProgress, error) {
	entries := make(map[string]FileProgress)

	data, err := s.bucket.ReadAll(ctx, s.opts.Key)
	if err != nil {
		if isNotExist(err) {
			return entries, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return entries, fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.opts.Key, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return entries, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, s.opts.Key, err)
	}
	if doc.Version > formatVersion {
		return entries, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}

	for name, p := range doc.Files {
		if p.Name == "" {
			p.Name = name
		}
		if p.Name != name || p.DownloadedBytes < 0 {
			return make(map[string]FileProgress), fmt.Errorf("%w: inconsistent entry %q", ErrCorrupt, name)
		}
		entries[name] = p
	}

	return entries, nil
}

// Save replaces the whole mapping and persists it.
func (s *Store) Save(ctx context.Context, entries map[string]FileProgress) error {
	s.mu.Lock()
	s.entries = make(map[string]FileProgress, len(entries))
	for name, p := range entries {
		p.Name = name
		s.entries[name] = p
	}
	s.mu.Unlock()

	return s.persist(ctx)
}

// Update stores p under p.Name and persists the state.
func (s *Store) Update(ctx context.Context, p FileProgress) error {
	if p.Name == "" {
		return errors.New("state: update without a name")
	}
	p.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.entries[p.Name] = p
	s.mu.Unlock()

	return s.persist(ctx)
}

// Get returns the record for name.
func (s *Store) Get(name string) (FileProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[name]
	return p, ok
}

// Snapshot returns a copy of all records.
func (s *Store) Snapshot() map[string]FileProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]FileProgress, len(s.entries))
	for name, p := range s.entries {
		out[name] = p
	}
	return out
}

// Names returns the names of all records in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// persist writes the current mapping. The bucket publishes the object only
// when the write completes, so a crash never leaves a torn document.
func (s *Store) persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	doc := document{
		Version:   formatVersion,
		RunID:     s.runID,
		UpdatedAt: time.Now().UTC(),
		Files:     s.entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	if err := s.bucket.WriteAll(ctx, s.opts.Key, data, &blob.WriterOptions{
		ContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("state: write %s: %w", s.opts.Key, err)
	}
	return nil
}

func (s *Store) warn(err error) {
	if s.opts.Warn != nil {
		s.opts.Warn(err)
	}
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
