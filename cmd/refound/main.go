package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/refound-dev/refound/internal/profile"
	"github.com/refound-dev/refound/plugin/vision"
	"github.com/refound-dev/refound/server"
	"github.com/refound-dev/refound/server/service/match"
	"github.com/refound-dev/refound/store"
	"github.com/refound-dev/refound/store/db"
)

const (
	greetingBanner = `
            __                      _
  _ _  ___ / _| ___  _  _ _ _  ___| |
 | '_|/ -_)  _|/ _ \| || | ' \/ _  |
 |_|  \___|_|  \___/ \_,_|_||_\__,_|
`
)

var (
	instanceProfile *profile.Profile

	rootCmd = &cobra.Command{
		Use:   "refound",
		Short: "A campus lost and found service with image matching",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				slog.Error("failed to create db driver", "error", err)
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				slog.Error("failed to migrate db", "error", err)
				return
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				slog.Error("failed to create server", "error", err)
				return
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				slog.Info("received signal, shutting down", "signal", sig.String())
				s.Shutdown(ctx)
				cancel()
			}()

			printGreetings()
			if err := s.Start(ctx); err != nil {
				if err != context.Canceled {
					slog.Error("failed to start server", "error", err)
				}
			}

			<-ctx.Done()
		},
	}

	rebuildCmd = &cobra.Command{
		Use:   "rebuild-matches",
		Short: "Recompute match candidates for all open items",
		Run: func(_ *cobra.Command, _ []string) {
			ctx := context.Background()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				slog.Error("failed to create db driver", "error", err)
				os.Exit(1)
			}
			storeInstance := store.New(dbDriver, instanceProfile)
			defer storeInstance.Close()

			// Keep the provider a nil interface when vision is disabled so
			// the engine's nil check applies.
			var provider match.EmbeddingProvider
			if instanceProfile.IsVisionEnabled() {
				cfg := vision.DefaultConfig()
				cfg.BaseURL = instanceProfile.VisionBaseURL
				provider = vision.NewProvider(cfg)
			}

			engine := match.NewEngine(storeInstance, provider, instanceProfile.InstanceURL)
			matched, err := engine.Rebuild(ctx)
			if err != nil {
				slog.Error("rebuild failed", "error", err)
				os.Exit(1)
			}
			fmt.Printf("rebuild finished, %d matching pairs recorded\n", matched)
		},
	}
)

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your instance")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("instanceUrl", rootCmd.PersistentFlags().Lookup("instance-url")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("refound")
	viper.AutomaticEnv()

	rootCmd.AddCommand(rebuildCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	instanceProfile = &profile.Profile{
		Mode:        viper.GetString("mode"),
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		Data:        viper.GetString("data"),
		Driver:      viper.GetString("driver"),
		DSN:         viper.GetString("dsn"),
		InstanceURL: viper.GetString("instanceUrl"),
		Version:     "0.1.0",
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
}

func printGreetings() {
	fmt.Print(greetingBanner)
	fmt.Printf("version %s has been started on port %d\n", instanceProfile.Version, instanceProfile.Port)
	fmt.Printf("mode: %s, driver: %s, data: %s\n", instanceProfile.Mode, instanceProfile.Driver, instanceProfile.Data)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
