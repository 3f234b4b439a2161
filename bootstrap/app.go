// Package bootstrap assembles a scenekit application: it loads the
// configuration, builds the runtime stack (logging, registry, supervision,
// viewport) and runs the configured root scene until shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vantle/scenekit/config"
	"github.com/vantle/scenekit/logging"
	"github.com/vantle/scenekit/registry"
	"github.com/vantle/scenekit/scene"
	"github.com/vantle/scenekit/supervisor"
	"github.com/vantle/scenekit/viewport"
)

// Options configure application assembly.
type Options struct {
	// ConfigFile is an optional configuration file path. Empty means
	// defaults plus environment overrides.
	ConfigFile string

	// Watch enables hot-reload of the configuration file.
	Watch bool

	// Output is the log sink. Defaults to stderr.
	Output io.Writer
}

// App is an assembled scenekit application.
type App struct {
	cfg      *config.Config
	watcher  *config.Watcher
	log      logging.Logger
	registry *registry.Memory
	sup      *supervisor.Supervisor
	viewport *viewport.ViewPort

	mu      sync.Mutex
	defs    map[string]scene.ModuleDef
	running bool

	shutdownChan chan os.Signal
}

// New loads configuration and builds the runtime stack. Scene modules must
// be registered with RegisterModule before Run resolves the root module.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()

	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if opts.Watch && opts.ConfigFile != "" {
		watcher, err = config.NewWatcher(opts.ConfigFile, loader)
		if err != nil {
			return nil, fmt.Errorf("watch config: %w", err)
		}
		cfg = watcher.Config()
	} else {
		cfg, err = loader.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
	}

	log := logging.New(opts.Output, cfg.Log.Level)

	reg := registry.NewMemory()
	sup := supervisor.New(cfg.App.Name, supervisor.Options{
		MaxRestarts: cfg.Supervisor.MaxRestarts,
		Window:      cfg.Supervisor.Window,
		StopTimeout: cfg.Supervisor.StopTimeout,
		Logger:      log,
	})
	vp := viewport.New(reg, sup, log)

	app := &App{
		cfg:          cfg,
		watcher:      watcher,
		log:          log,
		registry:     reg,
		sup:          sup,
		viewport:     vp,
		defs:         make(map[string]scene.ModuleDef),
		shutdownChan: make(chan os.Signal, 1),
	}

	if watcher != nil {
		watcher.OnChange(func(_, newConfig *config.Config) {
			app.log.Info("configuration reloaded",
				"app", newConfig.App.Name, "log_level", newConfig.Log.Level)
			app.mu.Lock()
			app.cfg = newConfig
			app.mu.Unlock()
		})
	}

	return app, nil
}

// RegisterModule makes a scene module resolvable by name from the root
// configuration.
func (app *App) RegisterModule(def scene.ModuleDef) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	name := def.ModuleName()
	if _, exists := app.defs[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	app.defs[name] = def
	return nil
}

// Config returns the current configuration.
func (app *App) Config() *config.Config {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *App) Logger() logging.Logger { return app.log }

// Registry returns the scene registry.
func (app *App) Registry() *registry.Memory { return app.registry }

// ViewPort returns the root controller.
func (app *App) ViewPort() *viewport.ViewPort { return app.viewport }

// Run starts the configured root scene and blocks until a termination
// signal arrives or ctx is cancelled, then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	rootName := app.cfg.Root.Module
	def, ok := app.defs[rootName]
	args := app.cfg.Root.Args
	app.mu.Unlock()

	abort := func(err error) error {
		app.mu.Lock()
		app.running = false
		app.mu.Unlock()
		return err
	}

	if rootName == "" {
		return abort(fmt.Errorf("no root module configured"))
	}
	if !ok {
		return abort(fmt.Errorf("root module %q is not registered", rootName))
	}

	if app.watcher != nil {
		if err := app.watcher.Start(); err != nil {
			return abort(err)
		}
	}

	defaults := app.Config().Scene
	_, err := app.viewport.StartRoot(def, args, scene.Options{
		Name:              rootName,
		MailboxSize:       defaults.MailboxSize,
		DeactivateTimeout: defaults.DeactivateTimeout,
		Logger:            app.log,
	})
	if err != nil {
		return abort(err)
	}

	app.log.Info("application started", "app", app.Config().App.Name, "root", rootName)

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	select {
	case <-app.shutdownChan:
		app.log.Info("shutdown signal received")
	case <-ctx.Done():
		app.log.Info("context cancelled")
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops the scene tree and releases resources.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	if !app.running {
		app.mu.Unlock()
		return nil
	}
	app.running = false
	app.mu.Unlock()

	if app.watcher != nil {
		app.watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := app.viewport.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stop scene tree: %w", err)
	}

	app.log.Info("application stopped", "app", app.Config().App.Name)
	return nil
}
