// Package decisionlog persists one human-readable record per chat request.
//
// Records go to {dir}/YYYY-MM-DD.log. The entry layout is parsed by external
// tooling and must not change:
//
//	[2006-01-02 15:04:05] IP: <ip> | UserID: <user> | Status: ALLOWED
//	Input: <first 500 bytes, CR/LF as spaces>
//	Action: Forwarding to Coze/API.
//	-----------------------------------
package decisionlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/capitalize-ai/chat-proxy/internal/model"
	"github.com/capitalize-ai/chat-proxy/pkg/metrics"
)

const separator = "-----------------------------------"

// Recorder persists decision records.
type Recorder interface {
	Record(ctx context.Context, rec *model.DecisionRecord) error
	Name() string
}

// FileLog appends records to a file per calendar day. Each record is a single
// write on an O_APPEND descriptor, so concurrent requests need no locking.
type FileLog struct {
	dir string
}

// NewFileLog creates a file log rooted at dir. The directory is created on
// first write.
func NewFileLog(dir string) *FileLog {
	return &FileLog{dir: dir}
}

// Name returns the sink name.
func (l *FileLog) Name() string {
	return "file"
}

// Path returns the file that holds records for rec's day.
func (l *FileLog) Path(rec *model.DecisionRecord) string {
	return filepath.Join(l.dir, rec.Time.Format("2006-01-02")+".log")
}

// Record appends rec.
func (l *FileLog) Record(_ context.Context, rec *model.DecisionRecord) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	f, err := os.OpenFile(l.Path(rec), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}

	_, werr := f.WriteString(Format(rec))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write decision log: %w", werr)
	}
	return cerr
}

// Format renders rec in the decision log layout.
func Format(rec *model.DecisionRecord) string {
	return fmt.Sprintf("[%s] IP: %s | UserID: %s | Status: %s\nInput: %s\nAction: %s\n%s\n",
		rec.Time.Format("2006-01-02 15:04:05"),
		rec.ClientIP,
		rec.UserID,
		rec.Status(),
		model.TruncateInput(rec.Message),
		rec.Action,
		separator,
	)
}

// Multi fans a record out to several sinks.
type Multi []Recorder

// Name returns the sink name.
func (m Multi) Name() string {
	return "multi"
}

// Record writes rec to every sink, even after a failure, and returns the
// joined errors. Each failing sink is counted.
func (m Multi) Record(ctx context.Context, rec *model.DecisionRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			metrics.DecisionLogFailures.WithLabelValues(r.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}
