package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/diarylock/internal/crypto"
)

func blob(seed byte) *crypto.EncryptedBlob {
	return &crypto.EncryptedBlob{
		Ciphertext: bytes.Repeat([]byte{seed}, crypto.TagSize+3),
		IV:         []byte{seed, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		Salt:       []byte{0xAA, seed},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := &Bundle{}
	b.Add("p2", blob(2))
	b.Add("p1", blob(1))

	s, err := Encode(b)
	require.NoError(t, err)

	got, err := Decode(s)
	require.NoError(t, err)
	assert.True(t, b.Equal(got))
	assert.ElementsMatch(t, []string{"p1", "p2"}, got.PageIDs())
}

func TestEncodeIsOrderIndependent(t *testing.T) {
	a := &Bundle{}
	a.Add("p1", blob(1))
	a.Add("p2", blob(2))

	b := &Bundle{}
	b.Add("p2", blob(2))
	b.Add("p1", blob(1))

	sa, err := Encode(a)
	require.NoError(t, err)
	sb, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestEncodeWireShape(t *testing.T) {
	b := &Bundle{}
	b.Add("p1", blob(1))

	s, err := Encode(b)
	require.NoError(t, err)

	var generic map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &generic))
	require.Len(t, generic["pages"], 1)
	entry := generic["pages"][0]
	assert.Equal(t, "p1", entry["pageId"])

	data, ok := entry["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString(blob(1).Ciphertext), data["ciphertext"])
	assert.Contains(t, data, "iv")
	assert.Contains(t, data, "salt")
}

func TestEncodeEmptyBundle(t *testing.T) {
	s, err := Encode(&Bundle{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pages":[]}`, s)

	got, err := Decode(s)
	require.NoError(t, err)
	assert.Empty(t, got.Pages)
}

// 16 zero bytes of ciphertext, 12 byte iv, 1 byte salt
const validData = `{"ciphertext":"AAAAAAAAAAAAAAAAAAAAAA==","iv":"AAAAAAAAAAAAAAAA","salt":"AQ=="}`

func TestDecodeCorrupted(t *testing.T) {
	inputs := map[string]string{
		"not json":           "definitely not json",
		"truncated":          `{"pages":[{"pageId":"p1"`,
		"missing pages":      `{"entries":[]}`,
		"pages null":         `{"pages":null}`,
		"pages object":       `{"pages":{"pageId":"p1"}}`,
		"pages string":       `{"pages":"p1"}`,
		"top level array":    `[{"pageId":"p1"}]`,
		"empty page id":      `{"pages":[{"pageId":"","data":{"ciphertext":"AQ==","iv":"AQ==","salt":"AQ=="}}]}`,
		"missing data":       `{"pages":[{"pageId":"p1"}]}`,
		"bad base64":         `{"pages":[{"pageId":"p1","data":{"ciphertext":"!!!","iv":"AQ==","salt":"AQ=="}}]}`,
		"duplicate page ids": `{"pages":[{"pageId":"p1","data":` + validData + `},{"pageId":"p1","data":` + validData + `}]}`,
		"empty data":         `{"pages":[{"pageId":"p1","data":{}}]}`,
		"missing salt":       `{"pages":[{"pageId":"p1","data":{"ciphertext":"AAAAAAAAAAAAAAAAAAAAAA==","iv":"AAAAAAAAAAAAAAAA"}}]}`,
		"short iv":           `{"pages":[{"pageId":"p1","data":{"ciphertext":"AAAAAAAAAAAAAAAAAAAAAA==","iv":"AQ==","salt":"AQ=="}}]}`,
		"short ciphertext":   `{"pages":[{"pageId":"p1","data":{"ciphertext":"AQID","iv":"AAAAAAAAAAAAAAAA","salt":"AQ=="}}]}`,
		"empty string":       ``,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(in)
			assert.ErrorIs(t, err, ErrPayloadCorrupted)
			assert.Nil(t, got)
		})
	}
}

func TestDecodeAcceptsMinimalBlob(t *testing.T) {
	got, err := Decode(`{"pages":[{"pageId":"p1","data":` + validData + `}]}`)
	require.NoError(t, err)
	require.Len(t, got.Pages, 1)
	assert.Len(t, got.Pages[0].Data.Ciphertext, crypto.TagSize)
	assert.Len(t, got.Pages[0].Data.IV, crypto.NonceSize)
}
