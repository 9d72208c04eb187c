package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/born-ml/spkrec-export/export"
)

// exportFlags mirror the configuration fields.
type exportFlags struct {
	modelID    string
	modelsDir  string
	cacheDir   string
	output     string
	opset      int
	mode       string
	device     string
	hub        string
	offline    bool
	seed       uint64
	exampleWAV string
	noProgress bool
}

func bindExportFlags(cmd *cobra.Command) *exportFlags {
	d := export.DefaultConfig()
	f := &exportFlags{}
	fs := cmd.Flags()
	fs.StringVar(&f.modelID, "model", d.ModelID, "pretrained model id")
	fs.StringVar(&f.modelsDir, "models-dir", d.ModelsDir, "directory for artifacts")
	fs.StringVar(&f.cacheDir, "cache-dir", d.CacheDir, "weight cache directory")
	fs.StringVarP(&f.output, "output", "o", d.Output, "artifact path")
	fs.IntVar(&f.opset, "opset", d.Opset, "ONNX opset version")
	fs.StringVar(&f.mode, "mode", d.Mode, "export mode (trace)")
	fs.StringVar(&f.device, "device", d.Device, "execution device (cpu)")
	fs.StringVar(&f.hub, "hub", d.HubURL, "weight repository: https base URL or s3://bucket/prefix")
	fs.BoolVar(&f.offline, "offline", false, "use the cache only")
	fs.Uint64Var(&f.seed, "seed", d.Seed, "seed of the random trace example")
	fs.StringVar(&f.exampleWAV, "example-wav", "", "trace with this WAV clip instead of random noise")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable the download progress bar")
	return f
}

// apply overrides cfg with every flag set on the command line. Derived
// paths follow --models-dir unless they are set explicitly.
func (f *exportFlags) apply(cmd *cobra.Command, cfg *export.Config) {
	fs := cmd.Flags()
	changed := fs.Changed
	if changed("model") {
		cfg.ModelID = f.modelID
	}
	if changed("models-dir") {
		cfg.ModelsDir = f.modelsDir
		if !changed("cache-dir") {
			cfg.CacheDir = filepath.Join(f.modelsDir, "cache")
		}
	}
	if (changed("model") || changed("models-dir")) && !changed("output") {
		cfg.Output = filepath.Join(cfg.ModelsDir, export.ArtifactName(cfg.ModelID))
	}
	if changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if changed("output") {
		cfg.Output = f.output
	}
	if changed("opset") {
		cfg.Opset = f.opset
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("device") {
		cfg.Device = f.device
	}
	if changed("hub") {
		cfg.HubURL = f.hub
	}
	if changed("offline") {
		cfg.Offline = f.offline
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("example-wav") {
		cfg.ExampleWAV = f.exampleWAV
	}
}

func newExportCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the configured model to ONNX",
		Args:  cobra.NoArgs,
	}
	f := bindExportFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runExport(cmd, opts, f)
	}
	return cmd
}

func runExport(cmd *cobra.Command, opts *options, f *exportFlags) error {
	cfg, err := export.LoadConfig(opts.envFile)
	if err != nil {
		return err
	}
	f.apply(cmd, cfg)

	var progress io.Writer
	if !f.noProgress && !cfg.Offline {
		progress = cmd.ErrOrStderr()
	}

	res, err := export.Run(cmd.Context(), cfg, export.Options{Progress: progress, Version: version})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %s\n", res.ModelID)
	fmt.Fprintf(out, "  path:        %s\n", res.Path)
	fmt.Fprintf(out, "  input:       %s %v\n", res.Input.Name, res.Input.Dims)
	fmt.Fprintf(out, "  output:      %s %v\n", res.Output.Name, res.Output.Dims)
	fmt.Fprintf(out, "  opset:       %d\n", res.Opset)
	fmt.Fprintf(out, "  sample rate: %d Hz\n", res.SampleRate)
	fmt.Fprintf(out, "  nodes:       %d\n", res.Nodes)
	fmt.Fprintf(out, "  params:      %d\n", res.Params)
	fmt.Fprintf(out, "  export id:   %s\n", res.ExportID)
	return nil
}
