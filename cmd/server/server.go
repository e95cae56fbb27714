package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/stephnangue/doorman/config"
	"github.com/stephnangue/doorman/core"
	doormanhttp "github.com/stephnangue/doorman/http"
	"github.com/stephnangue/doorman/listener"
	"github.com/stephnangue/doorman/listener/api"
	log "github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
	fileStorage "github.com/stephnangue/doorman/physical/file"
	inmemStorage "github.com/stephnangue/doorman/physical/inmem"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// Subsystem names for logging
	subsystemCore     = "core"
	subsystemListener = "listener"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Doorman server that responds to API requests",
		Long: `
Usage: doorman server [options]

  This command starts a Doorman server that responds to API requests.
  Start a server with a configuration file:

      $ doorman server --config=/etc/doorman/config.hcl

  For a full list of examples, please see the documentation.
  `,
		RunE: run,
	}

	wg sync.WaitGroup

	cleanupGuard sync.Once

	storageBackends = map[string]physical.Factory{
		"inmem": inmemStorage.NewInmem,
		"file":  fileStorage.NewFileBackend,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/doorman.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// construct the logger with gate closed during initialization
	logger := buildGatedLogger(conf)

	storage, err := buildStorage(conf, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the storage: %w", err)
	}

	sessionConfig, err := conf.SessionConfig()
	if err != nil {
		return fmt.Errorf("invalid session configuration: %w", err)
	}

	// Compile server information for output later
	infoKeys := make([]string, 0, 10)
	info := make(map[string]string)
	info["log level"] = conf.LogLevel
	infoKeys = append(infoKeys, "log level")
	info["log format"] = conf.LogFormat
	infoKeys = append(infoKeys, "log format")
	info["log file"] = conf.LogFile
	infoKeys = append(infoKeys, "log file")
	info["storage"] = conf.Storage.Type
	infoKeys = append(infoKeys, "storage")
	info["max sessions"] = fmt.Sprintf("%d", sessionConfig.MaxSessions)
	infoKeys = append(infoKeys, "max sessions")
	info["session ttl"] = sessionConfig.TTL.String()
	infoKeys = append(infoKeys, "session ttl")
	info["flush interval"] = sessionConfig.FlushInterval.String()
	infoKeys = append(infoKeys, "flush interval")

	newCore, err := core.NewCore(&core.CoreConfig{
		Storage:       storage,
		Logger:        logger.WithSubsystem(subsystemCore),
		SessionConfig: sessionConfig,
		SessionSecret: conf.SessionSecret,
	})
	if err != nil {
		return fmt.Errorf("error initializing core: %w", err)
	}

	if newCore.Configured(cmd.Context()) {
		info["setup"] = "complete"
	} else {
		info["setup"] = "pending"
	}
	infoKeys = append(infoKeys, "setup")

	// Create HTTP handler from core
	httpHandler := doormanhttp.Handler(&doormanhttp.HandlerProperties{
		Core:   newCore,
		Logger: logger,
	})

	lns, err := initListeners(httpHandler, conf, logger, &infoKeys, info)
	if err != nil {
		return err
	}

	var shutdownErr *multierror.Error
	var shutdownErrsMu sync.Mutex

	// Make sure we close all listeners from this point on
	listenerCloseFunc := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping all listeners\n")
		for _, ln := range lns {
			if err := ln.Stop(); err != nil {
				shutdownErrsMu.Lock()
				shutdownErr = multierror.Append(shutdownErr, fmt.Errorf("failed to stop %s listener at %s: %w", ln.Type(), ln.Addr(), err))
				shutdownErrsMu.Unlock()
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Listener stopped successfully: type=%s, address=%s\n", ln.Type(), ln.Addr())
			}
		}
	}

	// Use sync.Once to ensure listeners are stopped exactly once, even if
	// called both via defer (on panic/error) and explicitly on shutdown
	defer cleanupGuard.Do(listenerCloseFunc)

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Doorman server configuration:\n\n")

	titleCaser := cases.Title(language.English, cases.NoLower)

	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", titleCaser.String(k), info[k])
	}

	// Use context from cobra command which respects signal interrupts
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errChan := make(chan error, len(lns))
	var listenerErr *multierror.Error
	var listenerErrsMu sync.Mutex
	totalListeners := len(lns)

	for _, ln := range lns {
		wg.Go(func() {
			if err := ln.Start(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failed to start listener: %v\n", err)
				errChan <- err
			}
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Doorman server started! Log data will stream in below:\n")
	logger.OpenGate()

	// Wait for shutdown
	shutdownTriggered := false

	for !shutdownTriggered {
		select {
		case err := <-errChan:
			listenerErrsMu.Lock()
			listenerErr = multierror.Append(listenerErr, err)
			failedCount := listenerErr.Len()
			listenerErrsMu.Unlock()

			fmt.Fprintf(cmd.OutOrStdout(), "Listener error occurred: failed_count=%d, total_listeners=%d\n", failedCount, totalListeners)

			// Only trigger shutdown if ALL listeners have failed
			if failedCount >= totalListeners {
				fmt.Fprintf(cmd.OutOrStdout(), "All listeners have failed, triggering shutdown: failed_count=%d\n", failedCount)
				shutdownTriggered = true
				cancel()
			}
		case <-ctx.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "Doorman shutdown triggered\n")
			shutdownTriggered = true
			cancel()
		}
	}

	// Stop the listeners so that we don't process further client requests
	cleanupGuard.Do(listenerCloseFunc)

	// Wait for all listener goroutines to finish and collect any
	// remaining errors
	wg.Wait()

	close(errChan)
	for err := range errChan {
		listenerErrsMu.Lock()
		listenerErr = multierror.Append(listenerErr, err)
		listenerErrsMu.Unlock()
	}

	if err := listenerErr.ErrorOrNil(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Listener errors occurred during runtime: %v\n", err)
	}

	if err := shutdownErr.ErrorOrNil(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Shutdown completed with errors: %v\n", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

func buildGatedLogger(conf *config.Config) *log.GatedLogger {
	logConfig := &log.Config{
		Level:     log.ParseLogLevel(conf.LogLevel),
		Subsystem: subsystemCore,
		Format:    log.ParseOutputFormat(conf.LogFormat),
		Outputs:   []io.Writer{os.Stdout},
	}

	if conf.LogFile != "" {
		logConfig.FileConfig = &log.FileConfig{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogRotateMegabytes,
			MaxBackups: conf.LogRotateMaxFiles,
		}
	}

	gateConfig := log.GatedWriterConfig{
		Underlying:    os.Stdout,
		InitialState:  log.GateClosed,
		MaxBufferSize: 10 * 1024 * 1024, // 10MB buffer for initialization logs
	}

	gatedLogger, _ := log.NewGatedLogger(logConfig, gateConfig)

	return gatedLogger
}

func buildStorage(conf *config.Config, logger *log.GatedLogger) (physical.Backend, error) {
	factory, exists := storageBackends[conf.Storage.Type]
	if !exists {
		return nil, fmt.Errorf("unknown storage type %s", conf.Storage.Type)
	}

	storage, err := factory(conf.Storage.Config(), logger.WithSystem("storage."+conf.Storage.Type))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage of type %s: %w", conf.Storage.Type, err)
	}

	return storage, nil
}

func initListeners(httpHandler http.Handler, conf *config.Config, logger *log.GatedLogger, infoKeys *[]string, info map[string]string) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(conf.Listeners))

	for _, lnConfig := range conf.Listeners {
		ln, err := api.NewApiListener(api.ApiListenerConfig{
			Logger:      logger.WithSystem(subsystemListener),
			Address:     lnConfig.Address,
			TLSCertFile: lnConfig.TLSCertFile,
			TLSKeyFile:  lnConfig.TLSKeyFile,
			TLSEnabled:  lnConfig.TLSEnabled,
		}, httpHandler)
		if err != nil {
			return nil, fmt.Errorf("error initializing listener %q: %w", lnConfig.Name, err)
		}

		key := fmt.Sprintf("listener %s", lnConfig.Name)
		info[key] = lnConfig.Address
		*infoKeys = append(*infoKeys, key)

		lns = append(lns, ln)
	}

	return lns, nil
}
