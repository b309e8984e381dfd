package logging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	LastTestLog        = "LastTest.log"
	LastMemCheckLog    = "LastMemCheck.log"
	logTimeLayout      = "Jan 02 15:04 MST"
	separator          = "----------------------------------------------------------"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// RunLogs owns the log directory of one run: the shared per-attempt log and
// one output file per finished test, split into passed and failed.
type RunLogs struct {
	dir      string
	lastTest *AsyncFile
}

// NewRunLogs creates <baseDir>/testrun-<runID> and opens its run log.
func NewRunLogs(baseDir, runID string, memcheck bool, start time.Time) (*RunLogs, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	dir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, d := range []string{dir, filepath.Join(dir, "passed"), filepath.Join(dir, "failed")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	name := LastTestLog
	if memcheck {
		name = LastMemCheckLog
	}
	lastTest, err := NewAsyncFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(lastTest, "Start testing: %s\n%s\n", start.Format(logTimeLayout), separator); err != nil {
		_ = lastTest.Close()
		return nil, err
	}
	return &RunLogs{dir: dir, lastTest: lastTest}, nil
}

// Dir is the run directory.
func (r *RunLogs) Dir() string {
	return r.dir
}

// Writer receives the per-attempt records.
func (r *RunLogs) Writer() io.Writer {
	return r.lastTest
}

// WriteOutcome stores the output of a finished test in its own file.
func (r *RunLogs) WriteOutcome(o *types.TestOutcome) (string, error) {
	sub := "failed"
	if o.Passed() || o.Skipped() {
		sub = "passed"
	}
	name := fmt.Sprintf("%d-%s.log", o.Index, unsafeFileChars.ReplaceAllString(o.Name, "_"))
	path := filepath.Join(r.dir, sub, name)

	output := o.Output
	if o.CompressedOutput {
		raw, err := Inflate(o.Output)
		if err != nil {
			return "", fmt.Errorf("failed to decode output of %s: %w", o.Name, err)
		}
		output = raw
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Test: %s\n", o.Name)
	fmt.Fprintf(&b, "Command: %s\n", o.FullCommandLine)
	fmt.Fprintf(&b, "Directory: %s\n", o.Path)
	fmt.Fprintf(&b, "Status: %s (%s)\n", o.Status, o.CompletionStatus)
	if o.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", o.Reason)
	}
	if o.ExceptionStatus != "" {
		fmt.Fprintf(&b, "Exception: %s\n", o.ExceptionStatus)
	}
	fmt.Fprintf(&b, "Return value: %d\n", o.ReturnValue)
	fmt.Fprintf(&b, "Time: %.2f sec\n", o.ExecutionTime.Seconds())
	b.WriteString(separator + "\n")
	b.WriteString(output)
	if o.Measurement != "" {
		b.WriteString(separator + "\n")
		b.WriteString(o.Measurement)
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Close writes the run footer and flushes the run log.
func (r *RunLogs) Close(end time.Time) error {
	_, err := fmt.Fprintf(r.lastTest, "End testing: %s\n", end.Format(logTimeLayout))
	if cerr := r.lastTest.Close(); cerr != nil {
		return cerr
	}
	return err
}

// Inflate reverses the base64 deflate encoding of stored test output.
func Inflate(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
