package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/backend/cpu"
	"github.com/born-ml/spkrec-export/internal/hub"
	"github.com/born-ml/spkrec-export/internal/loader"
	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/safetensors"
	"github.com/born-ml/spkrec-export/internal/speaker"
	"github.com/born-ml/spkrec-export/internal/trace"
)

type tracedCPU = *trace.Backend[*cpu.CPUBackend]

const (
	testModel = "speechbrain/spkrec-ecapa-voxceleb"

	tinyYAML = `sample_rate: 16000
n_mels: 8
n_fft: 64
win_length: 4
hop_length: 2
channels: [8, 8, 8, 24]
kernel_sizes: [5, 3, 3, 1]
dilations: [1, 2, 3, 1]
res2net_scale: 2
attention_channels: 4
se_channels: 4
lin_neurons: 6
`
	tinyEmb = 6
)

func tinyHyperparams(t *testing.T) speaker.Hyperparams {
	t.Helper()
	hp, err := speaker.ParseHyperparams([]byte(tinyYAML))
	require.NoError(t, err)
	return hp
}

// tracedEncoder builds a randomized tiny encoder on a fresh recording
// backend, in eval mode.
func tracedEncoder(t *testing.T, seed uint64) (tracedCPU, *speaker.Encoder[tracedCPU]) {
	t.Helper()
	backend := trace.New(cpu.New())
	enc, err := speaker.NewEncoder(tinyHyperparams(t), backend)
	require.NoError(t, err)
	nn.Randomize(enc.Parameters(), seed)
	enc.Eval()
	return backend, enc
}

// seedCache writes a randomized tiny model into the hub cache layout.
func seedCache(t *testing.T, dir string) {
	t.Helper()
	enc, err := speaker.NewEncoder(tinyHyperparams(t), cpu.New())
	require.NoError(t, err)
	nn.Randomize(enc.Parameters(), 5)

	cache := hub.NewCache(dir, nil)
	require.NoError(t, os.MkdirAll(cache.ModelDir(testModel), 0o750))
	require.NoError(t, os.WriteFile(cache.Path(testModel, loader.HyperparamsFile), []byte(tinyYAML), 0o600))
	require.NoError(t, safetensors.WriteFile(cache.Path(testModel, loader.WeightsFile), enc.StateDict(), nil))
}

func freezeTiny(t *testing.T, seed uint64, duration int) *Frozen {
	t.Helper()
	backend, enc := tracedEncoder(t, seed)
	ex := RandomExample(enc.SampleRate(), duration, 1)
	frozen, err := Freeze(backend, Wrap[tracedCPU](enc), ex, FreezeOptions{Mode: "trace", Duration: duration})
	require.NoError(t, err)
	return frozen
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func tempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
