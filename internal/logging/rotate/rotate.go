package rotate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	// DateLayout is the layout of the date embedded in every file name.
	DateLayout = "2006-01-02"

	logExt     = ".log"
	archiveExt = ".zip"

	filePermissions = 0o644
)

var errDirRequired = errors.New("rotate: directory must be provided")

// Options configures a Writer.
type Options struct {
	// Dir is the directory holding the log files. It must exist.
	Dir string
	// Prefix is prepended to the date in file names, e.g. "error_".
	Prefix string
	// RetentionDays is the number of most recent days (today included) to keep.
	// Zero or less keeps every file.
	RetentionDays int
	// Compress turns finished days into zip archives.
	Compress bool
	// Location decides where midnight is. Defaults to time.Local.
	Location *time.Location
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// ErrorOutput receives errors that happen while compressing or pruning old
	// files. Those never fail a write. Defaults to stderr.
	ErrorOutput zapcore.WriteSyncer
}

// Writer is a zapcore.WriteSyncer writing to <Dir>/<Prefix><YYYY-MM-DD>.log.
//
// Compressing and pruning finished days runs in the background so that the
// first write of a day does not wait for it. Close waits for it to finish.
type Writer struct {
	mu   sync.Mutex
	opts Options
	file *os.File
	day  string

	// sweepMu serialises background sweeps, sweeps tracks them for Close.
	sweepMu sync.Mutex
	sweeps  sync.WaitGroup
}

var _ zapcore.WriteSyncer = &Writer{}

// New opens the file for the current day and starts tidying up files left
// behind by earlier runs.
func New(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, errDirRequired
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ErrorOutput == nil {
		opts.ErrorOutput = zapcore.Lock(os.Stderr)
	}

	w := &Writer{opts: opts}
	if err := w.rotate(w.today()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p to the file of the current day, switching files first when
// the day changed since the previous write.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if day := w.today(); day != w.day || w.file == nil {
		if err := w.rotate(day); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Sync commits the current file to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file and waits for running sweeps. A later Write
// reopens the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	err := w.closeFile()
	w.mu.Unlock()

	w.sweeps.Wait()
	return err
}

// Filename returns the path of the file currently written to.
func (w *Writer) Filename() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.path(w.day)
}

func (w *Writer) today() string {
	return w.opts.Now().In(w.opts.Location).Format(DateLayout)
}

func (w *Writer) path(day string) string {
	return filepath.Join(w.opts.Dir, w.opts.Prefix+day+logExt)
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := multierr.Append(w.file.Sync(), w.file.Close())
	w.file = nil
	return err
}

func (w *Writer) rotate(day string) error {
	if err := w.closeFile(); err != nil {
		w.reportError(fmt.Errorf("close %s: %w", w.path(w.day), err))
	}

	f, err := os.OpenFile(w.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return fmt.Errorf("rotate: open log file: %w", err)
	}
	w.file = f
	w.day = day

	w.sweeps.Add(1)
	go func() {
		defer w.sweeps.Done()

		w.sweepMu.Lock()
		defer w.sweepMu.Unlock()

		if err := w.sweep(day); err != nil {
			w.reportError(err)
		}
	}()
	return nil
}

// sweep removes files older than the retention window and compresses every
// other day before today. Days from today on are never touched, a writer may
// already have moved on to them.
func (w *Writer) sweep(today string) error {
	files, err := w.files()
	if err != nil {
		return err
	}

	start, err := time.ParseInLocation(DateLayout, today, w.opts.Location)
	if err != nil {
		return err
	}

	var cutoff time.Time
	if w.opts.RetentionDays > 0 {
		cutoff = start.AddDate(0, 0, -(w.opts.RetentionDays - 1))
	}

	var errs error
	for _, f := range files {
		switch {
		case !f.day.Before(start):
			continue
		case !cutoff.IsZero() && f.day.Before(cutoff):
			if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", f.path, err))
			}
		case w.opts.Compress && !f.compressed:
			if err := compress(f.path); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("compress %s: %w", f.path, err))
			}
		}
	}
	return errs
}

type ownedFile struct {
	path       string
	day        time.Time
	compressed bool
}

// files lists the files in Dir that belong to this writer, oldest first.
func (w *Writer) files() ([]ownedFile, error) {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}

	var out []ownedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := w.parse(e.Name())
		if !ok {
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].day.Before(out[j].day) })
	return out, nil
}

func (w *Writer) parse(name string) (ownedFile, bool) {
	base := strings.TrimSuffix(name, archiveExt)
	if !strings.HasPrefix(base, w.opts.Prefix) || !strings.HasSuffix(base, logExt) {
		return ownedFile{}, false
	}

	date := strings.TrimSuffix(strings.TrimPrefix(base, w.opts.Prefix), logExt)
	day, err := time.ParseInLocation(DateLayout, date, w.opts.Location)
	if err != nil {
		return ownedFile{}, false
	}

	return ownedFile{
		path:       filepath.Join(w.opts.Dir, name),
		day:        day,
		compressed: base != name,
	}, true
}

func (w *Writer) reportError(err error) {
	fmt.Fprintf(w.opts.ErrorOutput, "%v rotate error: %v\n", time.Now(), err)
	_ = w.opts.ErrorOutput.Sync()
}

// compress stores path in path+".zip" and removes path.
func compress(path string) error {
	if err := archive(path); err != nil {
		_ = os.Remove(path + archiveExt)
		return err
	}
	return os.Remove(path)
}

func archive(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, src.Close())
	}()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(path+archiveExt, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dst.Close())
	}()

	zw := zip.NewWriter(dst)
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Method = zip.Deflate

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, src); err != nil {
		return err
	}
	return zw.Close()
}
