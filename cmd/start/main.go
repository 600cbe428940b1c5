package start

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/config"
	"github.com/chronodb/oplogd/httpapi"
	"github.com/chronodb/oplogd/internal/di"
	"github.com/chronodb/oplogd/internal/testdoc"
	"github.com/chronodb/oplogd/metrics"
	"github.com/chronodb/oplogd/plugins/sourceplugin"
	"github.com/chronodb/oplogd/utils/log"
)

const (
	usage                 = "start"
	short                 = "Start the oplogd secondary apply engine"
	long                  = "This command starts the oplogd secondary oplog application engine"
	example               = "oplogd start --config <path>"
	defaultConfigFilePath = "./oplogd.yml"
	configDesc            = "set the path for the oplogd YAML configuration file"

	diskUsageMonitorInterval = 10 * time.Minute
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"boot", "up"},
		Example:    example,
		RunE:       executeStart,
	}
	configFilePath string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&configFilePath, "config", "c", defaultConfigFilePath, configDesc)
}

func executeStart(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	globalCtx, globalCancel := context.WithCancel(ctx)
	defer globalCancel()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	cmd.SilenceUsage = true
	log.Info("using %v for configuration", configFilePath)

	cfg, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o770); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDirectory, err)
	}

	c := di.NewContainer(cfg)
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("error closing storage: %v", err)
		}
	}()

	start := time.Now()
	log.Info("initializing oplogd...")

	src := loadSource(cfg)

	driver, err := c.Driver(src.Leaf, src.Cloner, src.Prefetch)
	if err != nil {
		return fmt.Errorf("failed to build sync driver: %w", err)
	}
	lastApplied, err := c.Store().LastOp()
	if err != nil {
		return fmt.Errorf("failed to read last applied optime from storage: %w", err)
	}
	driver.Configure(lastApplied)

	handler, err := c.HTTPHandler(src.Prober, false)
	if err != nil {
		return fmt.Errorf("failed to build admin http handler: %w", err)
	}

	stopDiskMonitor := make(chan struct{})
	dbPath := filepath.Join(cfg.DataDirectory, "oplogd.db")
	go metrics.StartDiskUsageMonitor(metrics.MinValidJournalDiskBytes, dbPath, diskUsageMonitorInterval, stopDiskMonitor)

	startupTime := time.Since(start)
	log.Info("startup time: %s", startupTime)

	go driver.Run(globalCtx)

	router := httpapi.NewRouter(handler, func() bool { return globalCtx.Err() == nil })
	server := &http.Server{Addr: cfg.ListenAddress, Handler: router}

	log.Info("launching admin http server on %s", cfg.ListenAddress)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin http server error: %v", err)
		}
	}()

	const defaultSignalChanLen = 10
	signalChan := make(chan os.Signal, defaultSignalChanLen)
	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 request")
				if err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err != nil {
					log.Error("failed to write goroutine pprof: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("initiating graceful shutdown due to '%v' request", s)
				close(stopDiskMonitor)
				globalCancel()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error("admin http server shutdown error: %v", err)
				}
				os.Exit(0)
			}
		}
	}()
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)

	select {}
}

// loadSource returns the external collaborators the engine consumes: a
// loaded plugin if configured, otherwise a non-durable in-memory fallback.
func loadSource(cfg config.Config) sourceplugin.Source {
	if cfg.LeafPlugin == "" {
		log.Warn("no leaf_plugin configured, using non-durable in-memory document store")
		store := testdoc.NewStore()
		return sourceplugin.Source{
			Leaf:     store,
			Cloner:   noopCloner{},
			Prober:   unreachableProber{},
			Prefetch: nil,
		}
	}

	src, err := sourceplugin.Open(cfg.LeafPlugin, nil)
	if err != nil {
		log.Fatal("failed to load source plugin %s: %v", cfg.LeafPlugin, err)
	}
	return src
}

type noopCloner struct{}

func (noopCloner) Clone(ctx context.Context) error { return nil }

type unreachableProber struct{}

func (unreachableProber) Probe(ctx context.Context, host string) (apply.CandidateInfo, error) {
	return apply.CandidateInfo{}, fmt.Errorf("no candidate prober configured")
}
