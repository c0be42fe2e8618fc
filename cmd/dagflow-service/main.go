package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/dagflow/internal/dagflow"
	"github.com/hrygo/dagflow/internal/dagflow/metricsprom"
)

var rootCmd = &cobra.Command{
	Use:   "dagflow-service",
	Short: "Loads declarative workflow descriptions and serves their execution over HTTP.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	viper.SetDefault("addr", ":28082")
	viper.SetDefault("workflows-dir", "./workflows")
	viper.SetDefault("rate-limit", 120)

	rootCmd.PersistentFlags().String("addr", ":28082", "address the HTTP listener binds to")
	rootCmd.PersistentFlags().String("workflows-dir", "./workflows", "directory of .yaml workflow descriptions to load at startup")
	rootCmd.PersistentFlags().Int("rate-limit", 120, "per-client requests allowed per minute before 429s are returned")

	for _, name := range []string{"addr", "workflows-dir", "rate-limit"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("dagflow")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := dagflow.NewEngine(nil)
	exporter := metricsprom.New(metricsprom.DefaultConfig())

	dir := viper.GetString("workflows-dir")
	loaded, err := loadWorkflows(engine, dir)
	if err != nil {
		slog.Warn("dagflow-service: could not load workflows directory", "dir", dir, "error", err)
	}
	slog.Info("dagflow-service: workflows loaded", "count", loaded, "dir", dir)

	addr := viper.GetString("addr")
	srv := NewServer(engine, exporter, addr, viper.GetInt("rate-limit"))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Printf("dagflow-service listening on %s\n", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// loadWorkflows walks dir for *.yaml/*.yml files and loads each under a
// dag_id derived from its filename (without extension).
func loadWorkflows(engine *dagflow.Engine, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			slog.Error("dagflow-service: failed to open workflow file", "path", path, "error", err)
			continue
		}

		dagID := strings.TrimSuffix(entry.Name(), ext)
		_, err = engine.LoadWorkflow(dagID, f)
		f.Close()
		if err != nil {
			slog.Error("dagflow-service: failed to load workflow", "dag_id", dagID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("dagflow-service: fatal", "error", err)
		os.Exit(1)
	}
}
