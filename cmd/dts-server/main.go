package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dts/scheduler/pkg/dtsrpc"
	"github.com/dts/scheduler/pkg/executor"
	"github.com/dts/scheduler/pkg/log"
	"github.com/dts/scheduler/pkg/pool"
	"github.com/dts/scheduler/pkg/protocol"
	"github.com/dts/scheduler/pkg/registry"
	"github.com/dts/scheduler/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// shutdownGrace bounds how long a graceful shutdown waits for in-flight
// calls to drain before the server forces them closed.
const shutdownGrace = 10 * time.Second

var config Config

var rootCmd = &cobra.Command{
	Use:   "dts-server",
	Short: "Distributed task-dispatch service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.BindPFlag("port", cmd.Flags().Lookup("port"))
		viper.BindPFlag("initial_context", cmd.Flags().Lookup("initial-context"))
		viper.BindPFlag("pool_capacity", cmd.Flags().Lookup("pool-capacity"))
		viper.BindPFlag("mem_override", cmd.Flags().Lookup("mem-override"))
		viper.BindPFlag("registry.storage", cmd.Flags().Lookup("registry-storage"))
		viper.BindPFlag("registry.path", cmd.Flags().Lookup("registry-path"))

		viper.SetEnvPrefix("dts")
		viper.AutomaticEnv()

		viper.SetConfigName("dts-server")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/dts/")
		viper.AddConfigPath("$HOME/.config/dts")
		viper.AddConfigPath(".")

		viper.ReadInConfig()

		if err := utils.UnmarshalConfig(*viper.GetViper(), &config); err != nil {
			log.Fatal(err)
		}

		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			panic(err)
		}
		switch {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity >= 1:
			log.SetLevel(log.DebugLevel)
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on (0 picks a free port)")
	rootCmd.Flags().Int("initial-context", 0, "Pre-warmed response scratch buffers (default 2 x NumCPU)")
	rootCmd.Flags().Int("pool-capacity", 0, "Bounded work pool queue capacity (default runtime.NumCPU() workers, 1024 queue slots)")
	rootCmd.Flags().String("mem-override", "", "Fixed memory override for resource admission, e.g. 4Gi (default: probe the host)")
	rootCmd.Flags().String("registry-storage", "", "Registry snapshot storage: memory (default) or disk")
	rootCmd.Flags().String("registry-path", "", "Registry snapshot directory, required when registry-storage=disk")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")
}

func buildProbe(cfg Config) executor.ResourceProbe {
	if cfg.MemOverride == "" {
		return nil
	}
	bytes, err := utils.ParseSize(cfg.MemOverride)
	if err != nil {
		log.Warn("dts-server: ignoring invalid mem-override:", err)
		return nil
	}
	return executor.NewStaticProbe(float64(runtime.NumCPU()), uint64(bytes)/(1024*1024))
}

func run(cmd *cobra.Command, args []string) error {
	utils.DisableTHP()

	p := pool.New(0, config.PoolCapacity)
	exec := executor.New(p, buildProbe(config))

	fs, err := config.Registry.CreateFs()
	if err != nil {
		return err
	}
	if err := registry.Write(fs, exec.FunctionNames(), protocol.NowMillis()); err != nil {
		log.Warn("dts-server: failed to write registry snapshot:", err)
	}

	srv := dtsrpc.New(dtsrpc.Config{
		Port:           config.Port,
		InitialContext: config.InitialContext,
		GRPC:           config.GRPC,
	}, exec)

	addr, err := srv.Listen()
	if err != nil {
		return err
	}
	log.Info("dts-server: listening on", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		log.Info("dts-server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		p.Shutdown(shutdownCtx)
		return nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
