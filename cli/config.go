package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/monitoring"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
)

// SetupGlobalConfig loads the env file, configuration, logger, and metrics
// for cmd and stores them in its context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := loadEnvFile(cmd); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := loadConfig(ctx, cmd, configFile)
	if err != nil {
		return core.NewError(err, core.ErrCodeConfiguration, nil)
	}
	logSource, err := cmd.Flags().GetBool("log-source")
	if err != nil {
		return fmt.Errorf("failed to get log-source flag: %w", err)
	}
	logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource)
	log := logger.GetDefault()
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	svc, err := monitoring.NewMonitoringService(ctx, monitoring.FileConfig(cfg.Runtime.MetricsFile))
	if err != nil {
		return core.NewError(err, core.ErrCodeConfiguration, nil)
	}
	svc.SetAsGlobal()
	ctx = contextWithMonitoring(ctx, svc)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "config_file", configFile, "table", cfg.Database.Table)
	return nil
}

// loadConfig layers defaults, the YAML file, the environment, and changed flags.
func loadConfig(ctx context.Context, cmd *cobra.Command, configFile string) (*config.Config, error) {
	service := config.NewService()
	sources := []config.Source{
		config.NewDefaultProvider(),
		config.NewEnvProvider(),
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)
	if len(cliFlags) > 0 {
		sources = append(sources, config.NewCLIProvider(cliFlags))
	}
	cfg, err := service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// extractCLIFlags copies every explicitly set flag that maps to a configuration path.
func extractCLIFlags(cmd *cobra.Command, flags map[string]any) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if _, ok := config.FlagPath(f.Name); !ok {
			return
		}
		if value, ok := flagValue(cmd.Flags(), f); ok {
			flags[f.Name] = value
		}
	})
}

func flagValue(set *pflag.FlagSet, f *pflag.Flag) (any, bool) {
	var (
		value any
		err   error
	)
	switch f.Value.Type() {
	case "string":
		value, err = set.GetString(f.Name)
	case "int":
		value, err = set.GetInt(f.Name)
	case "bool":
		value, err = set.GetBool(f.Name)
	case "float64":
		value, err = set.GetFloat64(f.Name)
	default:
		value = f.Value.String()
	}
	return value, err == nil
}

// loadEnvFile loads the env file if it exists. Variables already set in the
// process win.
func loadEnvFile(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	envFile = strings.TrimSpace(envFile)
	if envFile == "" {
		return nil
	}
	path := filepath.Clean(envFile)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
