package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"searchtweets/pkg/logger"
)

// DefaultPrefix names output files when no prefix is configured.
const DefaultPrefix = "twitter_search_results"

const fileTimeLayout = "2006-01-02T15_04_05"

// Writer persists records as newline-delimited JSON. With a results-per-file
// limit it rolls to a new timestamped file every N records; otherwise
// everything goes to <prefix>.json. Files are written under a .tmp name and
// renamed into place when complete.
type Writer struct {
	mu             sync.Mutex
	dir            string
	prefix         string
	resultsPerFile int
	now            func() time.Time
	logger         logger.Logger

	file      *os.File
	buf       *bufio.Writer
	enc       *json.Encoder
	tmpPath   string
	finalPath string
	inFile    int

	files   []string
	written int
	closed  bool
}

// Option configures a Writer
type Option func(*Writer)

// WithDir writes files into dir instead of the working directory.
func WithDir(dir string) Option {
	return func(w *Writer) { w.dir = dir }
}

// WithClock replaces the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets the writer logger
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a writer. resultsPerFile <= 0 means a single file.
func NewWriter(prefix string, resultsPerFile int, opts ...Option) (*Writer, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	w := &Writer{
		dir:            ".",
		prefix:         prefix,
		resultsPerFile: resultsPerFile,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrGlobal(w.logger).WithField("component", "storage")

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if w.resultsPerFile > 0 {
		w.logger.InfoWithFields("chunking result stream to files", map[string]interface{}{
			"results_per_file": w.resultsPerFile,
		})
	}
	return w, nil
}

// Write appends one record as a JSON line.
func (w *Writer) Write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	w.inFile++
	w.written++

	if w.resultsPerFile > 0 && w.inFile >= w.resultsPerFile {
		return w.finish()
	}
	return nil
}

// Close completes the current file. A single-file writer that never saw a
// record still leaves an empty <prefix>.json behind.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil && w.resultsPerFile <= 0 && len(w.files) == 0 {
		if err := w.open(); err != nil {
			return err
		}
	}
	if w.file == nil {
		return nil
	}
	return w.finish()
}

// Files lists the completed files in the order they were written.
func (w *Writer) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

// Written is the number of records written so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) open() error {
	w.finalPath = w.nextName()
	w.tmpPath = w.finalPath + ".tmp"

	f, err := os.Create(w.tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.enc = json.NewEncoder(w.buf)
	w.enc.SetEscapeHTML(false)
	w.inFile = 0

	w.logger.WithField("file", w.finalPath).Info("writing to file")
	return nil
}

func (w *Writer) finish() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file, w.buf, w.enc = nil, nil, nil

	if flushErr != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to write file: %w", flushErr)
	}
	if closeErr != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	w.files = append(w.files, w.finalPath)
	return nil
}

// nextName picks the next file name, adding _1, _2, ... when a rolled file
// would reuse a timestamp already on disk.
func (w *Writer) nextName() string {
	if w.resultsPerFile <= 0 {
		return filepath.Join(w.dir, w.prefix+".json")
	}
	base := fmt.Sprintf("%s_%s", w.prefix, w.now().UTC().Format(fileTimeLayout))
	name := filepath.Join(w.dir, base+".json")
	for n := 1; w.taken(name); n++ {
		name = filepath.Join(w.dir, fmt.Sprintf("%s_%d.json", base, n))
	}
	return name
}

func (w *Writer) taken(name string) bool {
	for _, f := range w.files {
		if f == name {
			return true
		}
	}
	_, err := os.Stat(name)
	return err == nil
}

// RecordWriter is the part of Writer that Tee needs.
type RecordWriter interface {
	Write(v interface{}) error
}

// Tee passes seq through unchanged while writing every value to w. A write
// failure is yielded as an error and ends the sequence.
func Tee[T any](seq iter.Seq2[T, error], w RecordWriter) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if werr := w.Write(v); werr != nil {
				var zero T
				yield(zero, werr)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

var spaces = regexp.MustCompile(" +")

// NameFromQuery turns a query into a file name prefix. Runs of spaces,
// colons and slashes become underscores; quotes become _Q_ and parentheses
// _p_. The result is cut to 42 characters and reduced to ASCII.
func NameFromQuery(query string) string {
	name := spaces.ReplaceAllString(strings.TrimSpace(query), "_")
	name = strings.NewReplacer(
		":", "_",
		`"`, "_Q_",
		"(", "_p_",
		")", "_p_",
		"/", "_",
	).Replace(name)

	if runes := []rune(name); len(runes) > 42 {
		name = string(runes[:42])
	}

	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r <= unicode.MaxASCII && !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultPrefix
	}
	return b.String()
}
