package loader

import (
	"strings"
)

// WeightMapper maps checkpoint tensor names to encoder parameter names.
type WeightMapper interface {
	// MapName returns the encoder name for a checkpoint name, or false to
	// drop the tensor.
	MapName(name string) (string, bool)

	// Format names the checkpoint layout.
	Format() string
}

// IdentityMapper keeps names as they are.
type IdentityMapper struct{}

// MapName returns name unchanged.
func (IdentityMapper) MapName(name string) (string, bool) { return name, true }

// Format returns "native".
func (IdentityMapper) Format() string { return "native" }

// SpeechBrainMapper maps SpeechBrain ECAPA checkpoint names. SpeechBrain
// wraps every conv and norm in a module of the same name:
//   - blocks.0.conv.conv.weight → blocks.0.conv.weight
//   - blocks.0.norm.norm.running_mean → blocks.0.norm.running_mean
//   - blocks.1.res2net_block.blocks.0.conv.conv.weight → blocks.1.res2net_block.blocks.0.conv.weight
//   - blocks.1.se_block.conv1.conv.bias → blocks.1.se.conv1.bias
//   - asp_bn.norm.weight → asp_bn.weight
//   - fc.conv.weight → fc.weight
//
// Batch-count buffers are dropped.
type SpeechBrainMapper struct{}

var speechBrainReplacer = strings.NewReplacer(
	".se_block.conv1.conv.", ".se.conv1.",
	".se_block.conv2.conv.", ".se.conv2.",
	".conv.conv.", ".conv.",
	".norm.norm.", ".norm.",
)

// MapName converts a SpeechBrain name.
func (SpeechBrainMapper) MapName(name string) (string, bool) {
	if strings.HasSuffix(name, ".num_batches_tracked") {
		return "", false
	}
	// Leading dot lets top-level modules match the same patterns.
	mapped := strings.TrimPrefix(speechBrainReplacer.Replace("."+name), ".")
	switch {
	case strings.HasPrefix(mapped, "asp_bn.norm."):
		mapped = "asp_bn." + strings.TrimPrefix(mapped, "asp_bn.norm.")
	case strings.HasPrefix(mapped, "fc.conv."):
		mapped = "fc." + strings.TrimPrefix(mapped, "fc.conv.")
	}
	return mapped, true
}

// Format returns "speechbrain".
func (SpeechBrainMapper) Format() string { return "speechbrain" }

// DetectMapper picks a mapper from the checkpoint's tensor names.
func DetectMapper(names []string) WeightMapper {
	for _, name := range names {
		if strings.Contains(name, ".conv.conv.") || strings.HasPrefix(name, "fc.conv.") ||
			strings.HasSuffix(name, ".num_batches_tracked") {
			return SpeechBrainMapper{}
		}
	}
	return IdentityMapper{}
}
