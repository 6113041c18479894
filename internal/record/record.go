// Package record appends throughput samples to per-sink text files.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// FilePrefix is prepended to the sink name to form the record file name.
const FilePrefix = "P-"

// Recorder writes "<seconds>\t<bps>\n" lines. Every Append opens the file in append
// mode and closes it again, so files are never truncated and survive restarts.
type Recorder struct {
	fs  afero.Fs
	dir string
}

// New returns a recorder writing into dir on fs. A nil fs uses the OS filesystem.
func New(fs afero.Fs, dir string) *Recorder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = "."
	}
	return &Recorder{fs: fs, dir: dir}
}

// Path returns the record file for sink name.
func (r *Recorder) Path(name string) string {
	return filepath.Join(r.dir, FilePrefix+name)
}

// Append writes one sample.
func (r *Recorder) Append(name string, at time.Duration, bps float64) error {
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	f, err := r.fs.OpenFile(r.Path(name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	if _, err := f.WriteString(Line(at, bps)); err != nil {
		f.Close()
		return fmt.Errorf("write record: %w", err)
	}
	return f.Close()
}

// Line formats a sample with six significant digits per field.
func Line(at time.Duration, bps float64) string {
	return FormatNumber(at.Seconds()) + "\t" + FormatNumber(bps) + "\n"
}

// FormatNumber renders v with six significant digits in the shorter of fixed or
// exponent notation, without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
