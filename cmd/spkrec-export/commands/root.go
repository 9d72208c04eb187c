package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

// options holds the global flags.
type options struct {
	envFile string
	verbose bool
}

// NewRootCommand builds the command tree. Running the root without a
// subcommand exports.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "spkrec-export",
		Short: "Export a pretrained speaker-embedding model to a fixed-shape ONNX graph",
		Long: `spkrec-export loads a pretrained ECAPA speaker encoder, wraps it so the
output is always [1, emb], traces it on one fixed-length clip and writes
the frozen graph as ONNX with a pinned opset.

The artifact takes "waveform" [1, sample_rate * 3] and returns
"embedding" [1, emb]. Pad or truncate audio to exactly that many samples.

Examples:
  # Export with defaults into models/
  spkrec-export

  # Export from an S3 mirror, offline-capable cache in /var/cache/spkrec
  spkrec-export export --hub s3://models/hf --cache-dir /var/cache/spkrec

  # Check what an artifact expects
  spkrec-export inspect models/spkrec-ecapa-voxceleb.onnx
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "load environment variables from this file if it exists")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	ef := bindExportFlags(root)
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		return runExport(cmd, opts, ef)
	}
	root.Args = cobra.NoArgs

	root.AddCommand(newExportCommand(opts))
	root.AddCommand(newInspectCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the CLI with a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
