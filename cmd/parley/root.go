package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmwaters/parley"
	"github.com/cmwaters/parley/config"
	"github.com/cmwaters/parley/pkg/app"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "End to end encrypted group chat on the local network",
	Long: `Parley finds other peers on the local network and lets them chat in a
group that only its members can read. One peer creates the group, the
others join it. Type 'help' once running for the list of commands.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/parley/config.yaml)")
	_ = viper.BindPFlag("config", flags.Lookup("config"))

	flags.String("log-level", "", "log level: trace, debug, info, warn or error")
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	rootCmd.Flags().StringSlice("listen", nil, "multiaddrs to listen on")
	_ = viper.BindPFlag("network.listen_addrs", rootCmd.Flags().Lookup("listen"))

	rootCmd.Flags().String("topic", "", "broadcast topic shared by all peers")
	_ = viper.BindPFlag("network.topic", rootCmd.Flags().Lookup("topic"))

	rootCmd.Flags().String("key-file", "", "network key written by 'parley keygen'")
	_ = viper.BindPFlag("identity.key_file", rootCmd.Flags().Lookup("key-file"))

	rootCmd.AddCommand(keygenCmd, versionCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

var errQuit = errors.New("quit")

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display := app.NewTerminal(cmd.OutOrStdout())
	node, err := parley.NewLibP2PNode(ctx, cfg, display, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error().Err(err).Msg("closing node")
		}
	}()
	display.Info(fmt.Sprintf("Running as %s on topic %q, type 'help' for commands", node.ID(), cfg.Network.Topic))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(node.Start)
	p.Go(func(ctx context.Context) error {
		if err := node.ReadCommands(ctx, cmd.InOrStdin()); err != nil {
			return err
		}
		// stdin closed or the user typed exit
		return errQuit
	})

	err = p.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
