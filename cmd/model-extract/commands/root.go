// Package commands implements the model-extract CLI commands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/model-extract/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const logLevelEnv = "MODEL_EXTRACT_LOG_LEVEL"

var (
	// Global flags
	verbose bool
	logJSON bool

	// Shared state
	log *logrus.Entry
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "model-extract",
		Short: "Extract the text decoder from a sharded safetensors checkpoint",
		Long: `model-extract reads a sharded safetensors checkpoint, keeps the tensors of one
sub-model (by default the language model of a vision-language checkpoint),
strips their prefix and writes them as a single-file model.

Only the shards that hold wanted tensors are read.

Example:
  model-extract extract --source ./gemma-3-4b-it ./gemma-3-4b-text`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			log = newLogger(cmd).WithField("component", "model-extract")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	root.AddCommand(
		newExtractCmd(),
		newInspectCmd(),
		newVersionCmd(),
	)
	return root
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if level := os.Getenv(logLevelEnv); level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			logger.SetLevel(lvl)
		}
	}
	return logger
}

// libraryLogger adapts the CLI logger for the extraction packages.
func libraryLogger() logging.Logger {
	if log == nil {
		return logging.Discard()
	}
	return logging.NewLogrusAdapterFromEntry(log)
}

// Execute runs the root command.
func Execute() error {
	// Setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}
