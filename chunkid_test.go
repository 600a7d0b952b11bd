package chunky

import (
	"errors"
	"testing"
)

func TestCompute(t *testing.T) {
	cases := []struct {
		alg  Hash
		data string
		want ChunkID
	}{
		{SHA256, "abc", "sha256://ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{BLAKE3, "", "blake3://af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{"md5", "abc", "sha256://ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, c := range cases {
		got := Compute(c.alg, []byte(c.data))
		if got != c.want {
			t.Errorf("Compute(%s, %q) = %s, want %s", c.alg, c.data, got, c.want)
		}
		if !got.Valid([]byte(c.data)) {
			t.Errorf("%s is not valid for its own data", got)
		}
		if got.Valid([]byte(c.data + "x")) {
			t.Errorf("%s is valid for other data", got)
		}
	}
}

func TestParseChunkID(t *testing.T) {
	const digest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	id, err := ParseChunkID("sha256://" + digest)
	if err != nil {
		t.Fatal(err)
	}
	if id.Algorithm() != SHA256 {
		t.Errorf("got algorithm %s, want sha256", id.Algorithm())
	}
	if id.Hex() != digest {
		t.Errorf("got digest %s, want %s", id.Hex(), digest)
	}

	bad := []string{
		"",
		digest,
		"sha256:" + digest,
		"://" + digest,
		"md5://" + digest,
		"sha256://" + digest[:62],
		"sha256://" + digest + "00",
		"sha256://BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD",
		"sha256://" + digest[:63] + "g",
	}
	for _, s := range bad {
		if _, err := ParseChunkID(s); !errors.Is(err, ErrConfig) {
			t.Errorf("ParseChunkID(%q): got error %v, want ErrConfig", s, err)
		}
	}

	if ChunkID("unknown://00").Valid(nil) {
		t.Error("id with unknown algorithm is valid")
	}
}
