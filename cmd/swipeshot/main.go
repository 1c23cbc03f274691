package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayusman/swipeshot/internal/app"
	"github.com/ayusman/swipeshot/internal/capture"
	"github.com/ayusman/swipeshot/internal/config"
	"github.com/ayusman/swipeshot/internal/gesture"
	"github.com/ayusman/swipeshot/internal/metrics"
	"github.com/ayusman/swipeshot/internal/pose"
	"github.com/ayusman/swipeshot/internal/screenshot"
	"github.com/ayusman/swipeshot/internal/server"
	"github.com/ayusman/swipeshot/internal/store"
	"github.com/ayusman/swipeshot/internal/tray"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	device := flag.String("device", "", "camera index or device path (overrides config)")
	withTray := flag.Bool("tray", false, "show the system tray menu")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *withTray {
		cfg.Tray = true
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.Fatal("swipeshot exited with error", zap.Error(err))
	}
	logger.Info("swipeshot stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger *zap.Logger) error {
	st, err := store.New(store.MemoryDSN)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	viewfinder := capture.NewViewfinder()
	defer viewfinder.Close()

	fps := cfg.Camera.FPS
	camera := capture.NewManager(logger.Named("camera"), capture.WithOpener(func(id string) capture.Camera {
		c := capture.NewCamera(id)
		c.SetFPS(fps)
		return c
	}))

	collector := metrics.NewCollector()
	application, err := app.New(app.Config{
		Camera:      camera,
		Viewfinder:  viewfinder,
		Pose:        pose.NewSource(pose.MediaPipeLoader(cfg.Pose), logger.Named("pose")),
		Recognizer:  gesture.NewRecognizer(cfg.GestureSettings()),
		Sink:        screenshot.NewSink(cfg.Capture.ExportDir, logger.Named("capture")),
		Store:       st,
		Metrics:     collector,
		Logger:      logger.Named("app"),
		Device:      cfg.Camera.Device,
		Preferences: app.PreferencesFrom(cfg),
	})
	if err != nil {
		return err
	}
	defer application.Shutdown()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		logger.Warn("config directory unavailable", zap.Error(err))
	}
	if watcher, err := config.NewWatcher(configPath, cfg, logger.Named("config")); err != nil {
		logger.Warn("configuration hot reloading disabled", zap.Error(err))
	} else {
		defer watcher.Close()
		watcher.OnChange(application.ApplyConfig)
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", zap.String("dir", webDir))
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       application,
		Metrics:   collector,
		Logger:    logger.Named("http"),
	})

	go func() {
		if err := application.Start(ctx); err != nil {
			logger.Warn("detection not started", zap.Error(err))
		}
	}()

	if !cfg.Tray {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	}
	return runWithTray(ctx, cfg, application, srv, logger)
}

// runWithTray keeps the tray on the calling goroutine, which must be the main one.
func runWithTray(ctx context.Context, cfg *config.Config, application *app.App, srv *server.Server, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr)
		cancel()
	}()

	t := tray.New(application.Preferences().AutoCapture)
	t.OnToggle(application.SetAutoCapture)
	t.OnCapture(func() {
		if _, err := application.Capture(store.OriginManual); err != nil {
			logger.Warn("tray capture failed", zap.Error(err))
		}
	})
	t.OnSettings(func() {
		if err := openBrowser(localURL(cfg.Server.Addr)); err != nil {
			logger.Warn("failed to open browser", zap.Error(err))
		}
	})
	t.OnQuit(cancel)

	unsubscribe := application.Subscribe(func(e app.Event) {
		switch {
		case e.Type == app.EventCapture && e.Capture != nil:
			t.SetLastCapture(e.Capture.Filename)
		case e.Type == app.EventStatus && e.Status != nil:
			t.SetEnabled(e.Status.Preferences.AutoCapture)
		}
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	cancel()
	return <-errCh
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.swipeshot/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".swipeshot", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
