package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/wallsight/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	Long: `Start an HTTP server exposing rectification, fingerprinting, matching,
calibration averaging and the project store.

The server provides the following endpoints:
  GET    /health                   - Health check
  GET    /metrics                  - Prometheus metrics
  POST   /rectify                  - Rectify an uploaded quad into a PNG
  POST   /fingerprint              - Extract a fingerprint
  POST   /match                    - Match a frame against a fingerprint or projects
  POST   /calibration/average      - Average orientation samples
  GET    /projects                 - List projects
  POST   /projects                 - Create a project
  GET    /projects/{id}            - Show a project
  DELETE /projects/{id}            - Delete a project
  GET    /projects/{id}/target.png - Rectified target preview
  GET    /ws/relocalize?project=ID - Stream frames until the target is found

Examples:
  wallsight serve
  wallsight serve --port 8080
  wallsight serve --host 0.0.0.0 --port 3000 --store-backend sqlite --store-path wallsight.db`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get configuration from centralized system (includes CLI flags, config file, env vars, and defaults)
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		maxUploadSize := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		rl := cfg.Server.RateLimit
		if cmd.Flags().Changed("requests-per-minute") {
			rl.RequestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}
		if cmd.Flags().Changed("requests-per-hour") {
			rl.RequestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}
		if cmd.Flags().Changed("max-requests-per-day") {
			rl.MaxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
		}
		if cmd.Flags().Changed("max-data-mb-per-day") {
			rl.MaxDataMBPerDay, _ = cmd.Flags().GetInt("max-data-mb-per-day")
		}

		// Validate port number
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}

		serverConfig := server.Config{
			Host:        host,
			Port:        port,
			CORSOrigin:  corsOrigin,
			MaxUploadMB: int64(maxUploadSize),
			TimeoutSec:  timeout,
			Rectify:     cfg.ToRectifyConfig(),
			ORB:         cfg.ToORBConfig(),
			Matcher:     cfg.Matcher,
			Scanner:     cfg.ToScannerConfig(),
			Parallel:    cfg.ToParallelConfig(),
			RateLimit: server.RateLimitConfig{
				RequestsPerMinute: rl.RequestsPerMinute,
				RequestsPerHour:   rl.RequestsPerHour,
				MaxRequestsPerDay: rl.MaxRequestsPerDay,
				MaxDataPerDay:     int64(rl.MaxDataMBPerDay) * 1024 * 1024,
			},
		}

		apiServer := server.NewServer(serverConfig, store).WithLogger(slog.Default())

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Request timeouts are enforced per handler; WebSocket streams must
		// outlive them, so the server itself sets no write timeout.
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting wallsight server", "host", host, "port", port,
				"store_backend", cfg.Store.Backend, "store_path", cfg.Store.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		if err := apiServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "matching timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Rate limiting flags; zero disables a limit
	serveCmd.Flags().Int("requests-per-minute", 0, "maximum POST requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 0, "maximum POST requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 0, "maximum POST requests per day per client")
	serveCmd.Flags().Int("max-data-mb-per-day", 0, "maximum uploaded MB per day per client")
}
