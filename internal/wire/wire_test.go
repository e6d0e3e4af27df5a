package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckInfoJSONRoundTrip(t *testing.T) {
	in := CheckInfo{
		CrateName: "serde",
		UsedRufs:  []string{"never_type", "specialization"},
		Cfg:       []string{`target_os="linux"`, "unix"},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out CheckInfo
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestUsedRufsJSONRoundTrip(t *testing.T) {
	in := UsedRufs{"never_type", "never_type", "box_syntax"}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out UsedRufs
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestCDelimiterEncodeDecode(t *testing.T) {
	in := CheckInfo{CrateName: "libc", UsedRufs: []string{"trait_alias"}, Cfg: []string{"unix"}}

	line, err := EncodeCDelimiter(in)
	require.NoError(t, err)

	out, ok, err := DecodeCDelimiter(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)
}

func TestDecodeCDelimiterIgnoresOrdinaryLines(t *testing.T) {
	_, ok, err := DecodeCDelimiter("   Compiling libc v0.2.151")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeCDelimiterMalformedPayload(t *testing.T) {
	_, ok, err := DecodeCDelimiter("CDelimiter::{not json::CDelimiter")
	require.True(t, ok)
	require.Error(t, err)
}

func TestFDelimiterEncodeDecode(t *testing.T) {
	line, err := EncodeFDelimiter([]string{"const_generics"})
	require.NoError(t, err)

	out, ok, err := DecodeFDelimiter(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"const_generics"}, out)
}

func TestUsedRufsSetDeduplicates(t *testing.T) {
	set := UsedRufs{"a", "a", "b"}.Set()
	require.Len(t, set, 2)
}
