package export

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/config"
	"github.com/born-ml/spkrec-export/internal/hub"
	"github.com/born-ml/spkrec-export/internal/loader"
	"github.com/born-ml/spkrec-export/internal/onnx"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.ModelsDir = filepath.Join(root, "models")
	cfg.CacheDir = filepath.Join(cfg.ModelsDir, "cache")
	cfg.Output = filepath.Join(cfg.ModelsDir, "spkrec-ecapa-voxceleb.onnx")
	cfg.Offline = true
	stubToolchain(t, nil)
	return cfg
}

// stubToolchain makes the toolchain check return err for the test.
func stubToolchain(t *testing.T, err error) {
	t.Helper()
	orig := checkToolchain
	t.Cleanup(func() { checkToolchain = orig })
	checkToolchain = func() error { return err }
}

func countingSource(t *testing.T) (hub.Source, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return hub.NewHTTPSource(srv.URL, nil), &hits
}

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir)
	source, hits := countingSource(t)

	res, err := (&Pipeline{Config: cfg, Source: source, Version: "test"}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, hits.Load(), "a populated cache needs no network")

	assert.Equal(t, cfg.Output, res.Path)
	assert.Equal(t, 16000, res.SampleRate)
	assert.Equal(t, int64(14), res.Opset)
	assert.Equal(t, "waveform", res.Input.Name)
	assert.Equal(t, []int64{1, 48000}, res.Input.Dims)
	assert.Equal(t, "embedding", res.Output.Name)
	assert.Equal(t, []int64{1, tinyEmb}, res.Output.Dims)
	assert.Positive(t, res.Params)
	assert.True(t, exists(cfg.Output))
}

func TestPipelineDeterministic(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir)

	run := func(out string) *onnx.ModelProto {
		cfg.Output = out
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		require.NoError(t, err)
		m, err := onnx.ParseFile(out)
		require.NoError(t, err)
		return m
	}
	a := run(filepath.Join(cfg.ModelsDir, "a.onnx"))
	b := run(filepath.Join(cfg.ModelsDir, "b.onnx"))

	assert.Equal(t, a.Graph.Inputs, b.Graph.Inputs)
	assert.Equal(t, a.Graph.Outputs, b.Graph.Outputs)
	assert.Equal(t, a.Graph.ValueInfo, b.Graph.ValueInfo)
	assert.Equal(t, a.Graph.Nodes, b.Graph.Nodes)
	assert.Equal(t, a.Graph.Initializers, b.Graph.Initializers)
	assert.NotEqual(t, a.Metadata()["export_id"], b.Metadata()["export_id"])
}

func TestPipelineToolchainFirst(t *testing.T) {
	cfg := testConfig(t)
	stubToolchain(t, fmt.Errorf("%w: running go1.11, go1.25 required", config.ErrToolchain))

	_, err := (&Pipeline{Config: cfg}).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrToolchain)
	assert.False(t, exists(cfg.ModelsDir), "no directories are created")
	assert.False(t, exists(cfg.Output))
}

func TestPipelineErrors(t *testing.T) {
	t.Run("unreachable source", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Offline = false
		cfg.HubURL = "http://127.0.0.1:1"
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, loader.ErrResource)
		assert.True(t, exists(cfg.CacheDir), "directories exist before loading")
		assert.False(t, exists(cfg.Output))
	})

	t.Run("offline empty cache", func(t *testing.T) {
		cfg := testConfig(t)
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, loader.ErrResource)
		assert.ErrorIs(t, err, hub.ErrNotFound)
	})

	t.Run("dynamic mode", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Mode = config.ModeDynamic
		seedCache(t, cfg.CacheDir)
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, ErrExport)
		assert.ErrorIs(t, err, ErrModeUnsupported)
		assert.False(t, exists(cfg.Output))
	})

	t.Run("gpu", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Device = "cuda"
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, loader.ErrDevice)
	})

	t.Run("bad opset", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Opset = 9
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, config.ErrInvalid)
		assert.False(t, exists(cfg.ModelsDir))
	})

	t.Run("models dir is a file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.ModelsDir, []byte("x"), 0o600))
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, loader.ErrResource)
		assert.NotErrorIs(t, err, ErrExport)
	})

	t.Run("other duration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Duration = 5
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, config.ErrInvalid)
		assert.False(t, exists(cfg.ModelsDir))
	})

	t.Run("unknown hub scheme", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Offline = false
		cfg.HubURL = "ftp://example"
		_, err := (&Pipeline{Config: cfg}).Run(context.Background())
		assert.ErrorIs(t, err, hub.ErrUnknownScheme)
	})
}

func TestPipelineWAVExample(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir)
	cfg.ExampleWAV = tempPath(t, "clip.wav")
	data := make([]int, 16000)
	for i := range data {
		data[i] = (i*37)%2000 - 1000
	}
	writeWAV(t, cfg.ExampleWAV, 16000, 1, data)

	res, err := (&Pipeline{Config: cfg}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 48000}, res.Input.Dims, "a 1 s clip is padded to 3 s")
}
