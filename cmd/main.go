package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imu-fusion/controller"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
	"imu-fusion/views"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	configPath := flag.String("config", "config/fusion.yaml", "path to fusion.yaml")
	storagePath := flag.String("storage", "config/storage.yaml", "path to storage.yaml")
	logFile := flag.String("log", "", "optional log file path (stdout is always included); overrides logging.file")
	samples := flag.Int("samples", 0, "process this many simulated samples as fast as possible, then exit (0 = real time)")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9100")
	liveAddr := flag.String("live", "", "serve the live websocket stream on this address, e.g. :8080")
	logLevel := flag.String("log-level", "", "DEBUG | INFO | WARN | ERROR; overrides logging.level")
	flag.Parse()

	// ── Load configs ─────────────────────────────────────────────────
	fusionCfg, err := utils.LoadFusionConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fusion config: %v\n", err)
		os.Exit(1)
	}
	storageCfg, err := utils.LoadStorageConfig(*storagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load storage config: %v\n", err)
		os.Exit(1)
	}

	// ── Logger ───────────────────────────────────────────────────────
	level, _ := utils.ParseLevel(fusionCfg.Logging.Level) // validated by the loader
	path := fusionCfg.Logging.File
	if *logFile != "" {
		path = *logFile
	}
	logger := utils.InitLogger(level, path)
	defer logger.Close()
	if err := applyLogLevel(logger, *logLevel); err != nil {
		logger.Fatal("%v", err)
	}

	settings := fusionCfg.Settings()
	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  imu-fusion  ·  AHRS orientation estimator")
	utils.L().Info("  %s @ %s  ·  log=%s  ·  GOMAXPROCS=%d  ·  PID=%d",
		settings.Convention, humanize.SI(float64(settings.SampleRate), "Hz"), logger.Level(), runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	if !filepath.IsAbs(storageCfg.Storage.BaseDir) {
		abs, _ := filepath.Abs(storageCfg.Storage.BaseDir)
		storageCfg.Storage.BaseDir = abs
	}

	// ── Context with OS signal cancellation ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if duration := fusionCfg.Simulation.DurationSeconds; duration > 0 && *samples == 0 {
		var timerCancel context.CancelFunc
		ctx, timerCancel = context.WithTimeout(ctx, time.Duration(duration)*time.Second)
		defer timerCancel()
		utils.L().Info("stream will auto-stop after %ds", duration)
	}

	// ── Optional HTTP surfaces ───────────────────────────────────────
	var servers []*http.Server

	var metrics *controller.Metrics
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
		metrics = controller.NewMetrics(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, serve("metrics", *metricsAddr, mux))
	}

	var live *views.LiveStream
	if *liveAddr != "" {
		live = views.NewLiveStream()
		go live.Run(ctx)

		mux := http.NewServeMux()
		mux.Handle("/live", live)
		servers = append(servers, serve("live stream", *liveAddr, mux))
	}

	// ── Pipeline assembly ────────────────────────────────────────────
	//
	//  IMU source  ──►  SampleCh  ──►  FusionController (offset → AHRS → Euler)
	//                                          │
	//                                     Record chan
	//                                          │
	//                                 RecordingController
	//                          │        │        │        │
	//                     euler_angles  diag  samples  sqlite / live

	pipeline, err := newPipeline(fusionCfg)
	if err != nil {
		utils.L().Fatal("init fusion pipeline: %v", err)
	}

	// 1. Sensors
	sensorCtrl := controller.NewSensorsController(fusionCfg)
	if *samples > 0 {
		sensorCtrl.StartBatch(ctx, *samples)
	} else {
		sensorCtrl.Start(ctx)
	}

	// 2. Fusion
	fusionCtrl := controller.NewFusionController(pipeline, metrics)
	fusionCtrl.Start(ctx, sensorCtrl.SampleCh)

	// 3. Recording
	recordCtrl, err := controller.NewRecordingController(storageCfg, settings, live)
	if err != nil {
		utils.L().Fatal("init recording controller: %v", err)
	}
	recordCtrl.Start(fusionCtrl.Out)

	utils.L().Info("pipeline running, press Ctrl+C to stop")

	// ── Stats ticker ─────────────────────────────────────────────────
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	// ── Main event loop ──────────────────────────────────────────────
	for {
		select {
		case sig := <-sigCh:
			utils.L().Info("received signal: %v, shutting down…", sig)
			cancel()
			goto shutdown

		case <-ctx.Done():
			goto shutdown

		case <-recordCtrl.Done():
			goto shutdown

		case <-statsTicker.C:
			processed, rejected := fusionCtrl.Stats()
			e := fusionCtrl.Orientation()
			utils.L().Info("── stats ─────────────────────────")
			if *samples == 0 {
				sensorCtrl.LogStats()
			}
			utils.L().Info("  fused    processed=%s  rejected=%s", humanize.Comma(int64(processed)), humanize.Comma(int64(rejected)))
			utils.L().Info("  attitude roll=%.2f  pitch=%.2f  yaw=%.2f", e.Roll, e.Pitch, e.Yaw)
			if live != nil {
				utils.L().Info("  live     clients=%d  dropped=%s", live.Clients(), humanize.Comma(int64(live.Dropped())))
			}
			utils.L().Info("──────────────────────────────────")
		}
	}

shutdown:
	cancel()
	if err := recordCtrl.Stop(); err != nil {
		utils.L().Error("recording: %v", err)
	}
	shutdownServers(servers)

	s := recordCtrl.Summary()
	utils.L().Info("session saved to: %s", recordCtrl.SessionDir())
	utils.L().Info("samples=%s  initialising=%s  angular_rate_recoveries=%s",
		humanize.Comma(int64(s.Samples)), humanize.Comma(int64(s.InitialisingSamples)), humanize.Comma(int64(s.AngularRateRecoveries)))
	utils.L().Info("accelerometer ignored=%s recoveries=%s error max=%.2f° mean=%.2f°",
		humanize.Comma(int64(s.AccelerometerIgnored)), humanize.Comma(int64(s.AccelerationRecoveries)),
		s.MaxAccelerationError, s.MeanAccelerationError)
	utils.L().Info("magnetometer  ignored=%s recoveries=%s error max=%.2f° mean=%.2f°",
		humanize.Comma(int64(s.MagnetometerIgnored)), humanize.Comma(int64(s.MagneticRecoveries)),
		s.MaxMagneticError, s.MeanMagneticError)
	utils.L().Info("final attitude roll=%.2f  pitch=%.2f  yaw=%.2f", s.Last.Roll, s.Last.Pitch, s.Last.Yaw)

	fmt.Println("\n✓ imu-fusion finished. Session at:", recordCtrl.SessionDir())
}

// applyLogLevel raises or lowers l to the named level. An empty name keeps
// the configured one.
func applyLogLevel(l *utils.Logger, name string) error {
	if name == "" {
		return nil
	}
	lvl, err := utils.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("-log-level: %w", err)
	}
	l.SetLevel(lvl)
	return nil
}

func newPipeline(cfg *utils.FusionConfig) (*fusion.Pipeline, error) {
	if cfg.Fusion.Initial != nil {
		return fusion.NewPipelineFrom(cfg.Settings(), fusion.FromEuler(*cfg.Fusion.Initial), false)
	}
	return fusion.NewPipeline(cfg.Settings(), false)
}

func serve(name, addr string, h http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.L().Error("%s server: %v", name, err)
		}
	}()
	utils.L().Info("%s listening on %s", name, addr)
	return srv
}

func shutdownServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(ctx)
	}
}
