package binary_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/sieveerr"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	bin := &binary.Binary{
		Extensions: []binary.ExtEntry{
			{Name: "fileinto", Version: "1.0.0", BlockID: 0},
			{Name: "variables", Version: "1.2.0", BlockID: 1},
		},
		Blocks:   [][]byte{{0x01, 0x02, 0x03}, {0xAA, 0xBB}},
		Metadata: []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Save(&buf, bin))

	got, err := binary.Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, uint8(binary.CurrentVersionMajor), got.VersionMajor)
	assert.Equal(t, bin.Extensions, got.Extensions)
	assert.Equal(t, bin.Blocks, got.Blocks)
	assert.Equal(t, bin.Metadata, got.Metadata)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.MainBlock())
	assert.Equal(t, []byte{0xAA, 0xBB}, got.Block(1))
	assert.Nil(t, got.Block(5))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := binary.Load(bytes.NewReader([]byte("not-a-sieve-binary-at-all-xx")))
	require.Error(t, err)
	assert.True(t, sieveerr.Is(err, sieveerr.KindBinCorrupt))
}

func TestLoadRejectsCorruptedHash(t *testing.T) {
	bin := &binary.Binary{Blocks: [][]byte{{0x01}}}
	var buf bytes.Buffer
	require.NoError(t, binary.Save(&buf, bin))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err := binary.Load(bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.True(t, sieveerr.Is(err, sieveerr.KindBinCorrupt))
}

func TestLoadRejectsNewerMajorVersion(t *testing.T) {
	bin := &binary.Binary{}
	var buf bytes.Buffer
	require.NoError(t, binary.Save(&buf, bin))

	data := buf.Bytes()
	data[4] = binary.CurrentVersionMajor + 1 // bump version_major in place

	_, err := binary.Load(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, sieveerr.Is(err, sieveerr.KindBinOutdated))
}

func TestOffsetPlaceholderPatch(t *testing.T) {
	var buf bytes.Buffer
	binary.PutUvarint(&buf, 7)
	pos := binary.PutOffsetPlaceholder(&buf)
	binary.PutUvarint(&buf, 99)

	binary.PatchOffset(&buf, pos, -42)

	r := bytes.NewReader(buf.Bytes())
	v, err := binary.ReadUvarint(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	delta, err := binary.ReadOffset(r)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), delta)

	tail, err := binary.ReadUvarint(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), tail)
}

func TestStringAndBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	binary.PutString(&buf, "header :contains \"from\"")
	binary.PutBytes(&buf, []byte{0, 1, 2, 3, 255})

	r := bytes.NewReader(buf.Bytes())
	s, err := binary.ReadString(r)
	require.NoError(t, err)
	assert.Equal(t, "header :contains \"from\"", s)

	b, err := binary.ReadBytes(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 255}, b)
}
