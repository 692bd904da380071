package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/medlink-labs/medlink/internal/adapters/api"
	"github.com/medlink-labs/medlink/internal/cliconfig"
	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/pkg/log"
	"github.com/medlink-labs/medlink/pkg/medlink"
)

const helpDescription = `
Forward HL7 messages dropped by the practice management system to the MedLink
cloud API, and write pending billing exports back as HL7 files.

Highlights:
  - Watches a drop folder, debounces partial writes, and retries transient
    failures before quarantining a file.
  - Two-phase export confirmation so claims are never silently lost.
  - Configure via file ($HOME/.medlink/config.toml), MEDLINK_* environment
    variables, or flags; an explicitly set flag always wins.

Docs: https://docs.medlink.example.com/agent
`

var exampleUsage = strings.TrimSpace(`
  medlink --watch-dir C:\HL7\outbox --clinic-id north-01 --api-key <api-key>
  medlink --config /etc/medlink/config.toml --once
  medlink check --clinic-id north-01 --api-key <api-key>
`)

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	adapter := log.NewZerologAdapter()
	zl := adapter.Logger()

	root := &cobra.Command{
		Use:     "medlink",
		Short:   "Sync HL7 files from a clinic drop folder to the MedLink API",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", medlink.Version, runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}

			// Log configuration (masking API key)
			logCfg := cfg
			if len(logCfg.APIKey) > 0 {
				logCfg.APIKey = "*****"
			}
			zl.Info().Interface("config", logCfg).Msg("configuration")

			m, err := medlink.New(libConfig(cfg), medlink.WithLogger(adapter))
			if err != nil {
				return fmt.Errorf("create agent: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if cfg.Once {
				return m.RunOnce(ctx)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := m.Start(ctx); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}

			// Watch for a crash alongside the shutdown signal.
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						s := m.Status()
						if s == medlink.StateStopped || s == medlink.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case <-sigCh:
				zl.Info().Msg("received signal, stopping...")
			case <-doneCh:
				if m.Status() == medlink.StateCrashed {
					zl.Error().Msg("agent crashed")
				}
			}

			if err := m.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
				return fmt.Errorf("stop agent: %w", err)
			}
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity and credentials against the MedLink API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only the API settings matter here; skip folder validation.
			if err := layerConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			if cfg.APIKey == "" || cfg.ClinicID == "" {
				return fmt.Errorf("%w: --api-key and --clinic-id are required", domain.ErrInvalidConfig)
			}

			client := api.NewClient(cfg.APIURL, cfg.APIKey, cfg.ClinicID, medlink.Version,
				&http.Client{Timeout: cfg.HTTPTimeout}, adapter)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
			defer cancel()

			st, err := client.Status(ctx)
			switch {
			case errors.Is(err, domain.ErrCredentialsInvalid):
				return fmt.Errorf("credentials rejected: check --api-key and --clinic-id")
			case err != nil:
				return fmt.Errorf("remote unreachable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: connected to %s (api %s)\n", st.ClinicName, st.APIVersion)
			return nil
		},
	}
	root.AddCommand(check)

	for _, cmd := range []*cobra.Command{root, check} {
		f := cmd.Flags()
		f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.medlink/config.toml)")
		f.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "base API URL")
		f.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key for authentication")
		f.StringVar(&cfg.ClinicID, "clinic-id", cfg.ClinicID, "clinic identifier issued by MedLink")
		f.StringVar(&cfg.ClinicCode, "clinic-code", cfg.ClinicCode, "short site code for export filenames (defaults to clinic-id)")
		if err := f.MarkHidden("api-url"); err != nil {
			zl.Info().Err(err).Msg("failed to hide api-url flag")
		}
	}

	root.Flags().StringVar(&cfg.WatchDir, "watch-dir", cfg.WatchDir, "folder the practice system drops HL7 files into")
	root.Flags().StringVar(&cfg.ProcessedDir, "processed-dir", cfg.ProcessedDir, "folder for synced files (defaults to watch-dir/processed)")
	root.Flags().StringVar(&cfg.FailedDir, "failed-dir", cfg.FailedDir, "folder for files that exhausted retries (defaults to watch-dir/failed)")
	root.Flags().BoolVar(&cfg.DeleteOnSuccess, "delete-on-success", cfg.DeleteOnSuccess, "delete synced files instead of moving them")

	root.Flags().DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "quiet period before a new file is picked up")
	root.Flags().Int64Var(&cfg.MaxFileSize, "max-file-size", cfg.MaxFileSize, "maximum file size in bytes")
	root.Flags().IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "attempts before a file is moved to the failed folder")
	root.Flags().DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay between attempts for the same file")
	root.Flags().DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between heartbeats")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	root.Flags().BoolVar(&cfg.ExportEnabled, "export", cfg.ExportEnabled, "poll for pending exports and write them as HL7 files")
	root.Flags().StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "folder exports are written to (defaults to watch-dir/export)")
	root.Flags().StringVar(&cfg.ExportFilePattern, "export-file-pattern", cfg.ExportFilePattern, "export filename pattern ({clinic}, {timestamp}, {id})")
	root.Flags().DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "interval between export polls")

	root.Flags().StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "local address for the read-only status API (empty disables)")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "process the current folder contents, run one export cycle, and exit")

	if err := root.Execute(); err != nil {
		zl.Error().Err(err).Msg("medlink")
		os.Exit(1)
	}
}

// loadConfig layers file and environment values under explicitly set flags,
// then validates.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	if err := layerConfig(cmd, cfg, cfgPath); err != nil {
		return err
	}
	return cfg.Validate()
}

func layerConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	return cliconfig.ApplyEnvConfig(cfg, changed)
}

func libConfig(cfg cliconfig.Config) medlink.Config {
	return medlink.Config{
		APIURL:            cfg.APIURL,
		APIKey:            cfg.APIKey,
		ClinicID:          cfg.ClinicID,
		ClinicCode:        cfg.ClinicCode,
		HTTPTimeout:       cfg.HTTPTimeout,
		WatchDir:          cfg.WatchDir,
		ProcessedDir:      cfg.ProcessedDir,
		FailedDir:         cfg.FailedDir,
		ExportDir:         cfg.ExportDir,
		DeleteOnSuccess:   cfg.DeleteOnSuccess,
		Debounce:          cfg.Debounce,
		MaxFileSize:       cfg.MaxFileSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ExportEnabled:     cfg.ExportEnabled,
		PollInterval:      cfg.PollInterval,
		ExportFilePattern: cfg.ExportFilePattern,
		StatusAddr:        cfg.StatusAddr,
	}
}
