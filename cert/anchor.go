package cert

import "xdao.co/canonproof/canon"

// AnchorCodecVector records the digest the producing implementation computed
// for the reference codec vector.
const AnchorCodecVector = "codec_vector"

// CodecVectorDigest is the published GOVERNANCE digest of {"name": "test"}.
const CodecVectorDigest = "sha256:7d9fd2051fc32b32feab10946fab6bb91426ab7e39aa5439289ed892864aa91d"

// LocalCodecVector recomputes the reference vector with this build.
func LocalCodecVector() string {
	d, err := canon.ComputeContentHash(map[string]any{"name": "test"}, canon.Governance, "")
	if err != nil {
		return ""
	}
	return d.String()
}

func anchorsWithCodec(extra map[string]string) map[string]string {
	out := copyMap(extra)
	out[AnchorCodecVector] = LocalCodecVector()
	return out
}
