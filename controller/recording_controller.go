package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"imu-fusion/models"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
	"imu-fusion/views"
)

// RecordingController is the final pipeline stage. It reads records and
// writes them to:
//   - euler_angles.csv  (timestamp, roll, pitch, yaw)
//   - diagnostics.csv   (quaternion, Euler, internal state and flags)
//   - samples.csv       (raw input, replayable)
//   - an sqlite datalog (optional)
//   - live websocket clients (optional)
//
// It also feeds a diagnostics reporter whose summary is available after
// Stop.
type RecordingController struct {
	storageCfg *utils.StorageConfig
	sessionDir string

	eulerWriter  *views.CSVWriter
	diagWriter   *views.CSVWriter
	sampleWriter *views.CSVWriter
	datalog      *views.Datalog
	live         *views.LiveStream

	mu       sync.Mutex
	reporter *fusion.Reporter
	failed   bool

	rowsWritten uint64
	wg          sync.WaitGroup
	writerDone  chan struct{}
}

// NewRecordingController creates the session directory and its exports.
// live may be nil.
func NewRecordingController(storageCfg *utils.StorageConfig, settings models.Settings, live *views.LiveStream) (*RecordingController, error) {
	sess := utils.SessionName(storageCfg.Storage.SessionPrefix)
	sessionDir := filepath.Join(storageCfg.Storage.BaseDir, sess)

	if !storageCfg.Storage.Overwrite {
		if _, err := os.Stat(sessionDir); err == nil {
			return nil, fmt.Errorf("session dir %s already exists (overwrite=false)", sessionDir)
		}
	}
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	rc := &RecordingController{
		storageCfg: storageCfg,
		sessionDir: sessionDir,
		live:       live,
		reporter:   fusion.NewReporter(false),
		writerDone: make(chan struct{}),
	}

	var err error
	if rc.eulerWriter, err = rc.openCSV(views.StreamEuler, models.EulerRecord{}.CSVHeader()); err != nil {
		return nil, err
	}
	if rc.diagWriter, err = rc.openCSV(views.StreamDiagnostics, models.Output{}.CSVHeader()); err != nil {
		rc.closeAll()
		return nil, err
	}
	if rc.sampleWriter, err = rc.openCSV(views.StreamSamples, models.Sample{}.CSVHeader()); err != nil {
		rc.closeAll()
		return nil, err
	}

	if dl := storageCfg.Storage.Datalog; dl.Enabled {
		rc.datalog, err = views.OpenDatalog(filepath.Join(sessionDir, dl.FileName))
		if err == nil {
			err = rc.datalog.WriteSettings(settings)
		}
		if err != nil {
			rc.closeAll()
			return nil, err
		}
	}

	utils.L().Info("recording controller ready  session=%s  datalog=%v", sessionDir, rc.datalog != nil)
	return rc, nil
}

func (rc *RecordingController) openCSV(s views.Stream, header []string) (*views.CSVWriter, error) {
	if !views.MatchesSchema(s, header) {
		return nil, fmt.Errorf("%s header does not match its schema", s)
	}
	csvCfg := rc.storageCfg.Storage.CSV
	return views.NewCSVWriter(filepath.Join(rc.sessionDir, s.FileName()),
		csvCfg.BufferSizeKB*1024, csvCfg.WriteHeader, header)
}

// Start consumes records until in is closed, flushing periodically.
func (rc *RecordingController) Start(in <-chan *models.Record) {
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		flushMs := rc.storageCfg.Storage.CSV.FlushIntervalMs
		if flushMs <= 0 {
			flushMs = 100
		}
		ticker := time.NewTicker(time.Duration(flushMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-rc.writerDone:
				return
			case <-ticker.C:
				rc.flushAll()
			}
		}
	}()

	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		defer close(rc.writerDone)
		for rec := range in {
			rc.writeRecord(rec)
		}
	}()

	utils.L().Info("recording controller started")
}

func (rc *RecordingController) writeRecord(rec *models.Record) {
	rc.eulerWriter.Write(rec.Output.EulerRecord())
	rc.diagWriter.Write(&rec.Output)
	rc.sampleWriter.Write(&rec.Sample)

	if rc.datalog != nil {
		if err := rc.datalog.Write(rec); err != nil {
			rc.fail(err)
		}
	}
	if rc.live != nil {
		if err := rc.live.Broadcast(&rec.Output); err != nil {
			utils.L().Warn("live stream: %v", err)
		}
	}

	rc.mu.Lock()
	rc.reporter.Record(rec.Output)
	rc.mu.Unlock()
	atomic.AddUint64(&rc.rowsWritten, 1)
}

// fail logs the first storage error of the session.
func (rc *RecordingController) fail(err error) {
	rc.mu.Lock()
	first := !rc.failed
	rc.failed = true
	rc.mu.Unlock()
	if first {
		utils.L().Error("recording: %v", err)
	}
}

func (rc *RecordingController) flushAll() error {
	var errs []error
	for _, w := range rc.writers() {
		errs = append(errs, w.Flush())
	}
	if rc.datalog != nil {
		errs = append(errs, rc.datalog.Flush())
	}
	err := errors.Join(errs...)
	if err != nil {
		rc.fail(err)
	}
	return err
}

func (rc *RecordingController) writers() []*views.CSVWriter {
	var ws []*views.CSVWriter
	for _, w := range []*views.CSVWriter{rc.eulerWriter, rc.diagWriter, rc.sampleWriter} {
		if w != nil {
			ws = append(ws, w)
		}
	}
	return ws
}

func (rc *RecordingController) closeAll() error {
	var errs []error
	for _, w := range rc.writers() {
		errs = append(errs, w.Close())
	}
	if rc.datalog != nil {
		errs = append(errs, rc.datalog.Close())
	}
	return errors.Join(errs...)
}

// Stop waits until the input channel has been drained, then flushes and
// closes every export. The returned error is the first storage failure.
func (rc *RecordingController) Stop() error {
	rc.wg.Wait()
	err := rc.closeAll()

	rows := atomic.LoadUint64(&rc.rowsWritten)
	utils.L().Info("recording controller stopped  (rows_written=%s, session=%s)", humanize.Comma(int64(rows)), rc.sessionDir)
	for _, w := range rc.writers() {
		if fi, serr := os.Stat(w.Path()); serr == nil {
			utils.L().Info("  %-18s %s", filepath.Base(w.Path()), humanize.Bytes(uint64(fi.Size())))
		}
	}
	return err
}

// Done is closed once the input channel has been drained.
func (rc *RecordingController) Done() <-chan struct{} {
	return rc.writerDone
}

func (rc *RecordingController) SessionDir() string {
	return rc.sessionDir
}

// RowsWritten returns the number of records persisted.
func (rc *RecordingController) RowsWritten() uint64 {
	return atomic.LoadUint64(&rc.rowsWritten)
}

// Summary returns the diagnostics of every record written so far.
func (rc *RecordingController) Summary() models.Summary {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reporter.Summary()
}
