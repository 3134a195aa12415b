package binary

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"

	"github.com/dovesieve/sieve/sieveerr"
)

// PackVersion canonicalizes version (a semver string, "v" prefix optional)
// via golang.org/x/mod/semver and packs major/minor/patch into the single
// uvarint the wire format carries (spec.md §4.6: "uvarint version").
func PackVersion(version string) (uint64, error) {
	v := version
	if len(v) == 0 || v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return 0, fmt.Errorf("binary: invalid extension version %q", version)
	}
	var major, minor, patch uint64
	fmt.Sscanf(semver.Canonical(v), "v%d.%d.%d", &major, &minor, &patch)
	return major*1_000_000 + minor*1_000 + patch, nil
}

// UnpackVersion reverses PackVersion, producing a canonical "major.minor.patch"
// string.
func UnpackVersion(packed uint64) string {
	major := packed / 1_000_000
	minor := (packed / 1_000) % 1_000
	patch := packed % 1_000
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// Magic identifies a compiled sieve script container (spec.md §4.6).
const Magic = "2veS"

// CurrentVersionMajor/Minor is the format version this package writes.
// Readers reject a higher major (bin_outdated) and accept any minor.
const (
	CurrentVersionMajor = 1
	CurrentVersionMinor = 0
)

// ExtEntry records one extension the compiled script depends on: its name,
// the canonical semver it was compiled against, and which block (if any)
// holds its extension-specific data. BlockID 0 means the extension
// contributes no block of its own.
type ExtEntry struct {
	Name    string
	Version string
	BlockID uint32
}

// Binary is the in-memory form of a compiled script's container (spec.md
// §4.6). Blocks[0] is always the main program; Blocks[i] for i>0 is
// addressed by an ExtEntry.BlockID == i. Metadata is the CBOR-encoded
// script_metadata block (driver-specific fields, spec.md §4.11).
type Binary struct {
	VersionMajor uint8
	VersionMinor uint8
	Extensions   []ExtEntry
	Blocks       [][]byte
	Metadata     []byte
}

// MainBlock returns the main program block (block 0), or nil if absent.
func (b *Binary) MainBlock() []byte {
	if len(b.Blocks) == 0 {
		return nil
	}
	return b.Blocks[0]
}

// Block returns block i, or nil if out of range.
func (b *Binary) Block(i uint32) []byte {
	if int(i) >= len(b.Blocks) {
		return nil
	}
	return b.Blocks[i]
}

// Save writes bin to w: MAGIC(4) | VERSION_MAJOR(1) | VERSION_MINOR(1) |
// HASH(32) | BODY, where HASH is the BLAKE2b-256 digest of BODY and BODY is
// the extension table followed by the blocks and the metadata block.
func Save(w io.Writer, bin *Binary) error {
	var body bytes.Buffer

	PutUvarint(&body, uint64(len(bin.Extensions)))
	for _, e := range bin.Extensions {
		PutString(&body, e.Name)
		packed, err := PackVersion(e.Version)
		if err != nil {
			return fmt.Errorf("binary: extension %q: %w", e.Name, err)
		}
		PutUvarint(&body, packed)
		PutUvarint(&body, uint64(e.BlockID))
	}

	PutUvarint(&body, uint64(len(bin.Blocks)))
	for _, blk := range bin.Blocks {
		PutBytes(&body, blk)
	}

	PutBytes(&body, bin.Metadata)

	digest := blake2b.Sum256(body.Bytes())

	if _, err := w.Write([]byte(Magic)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{CurrentVersionMajor, CurrentVersionMinor}); err != nil {
		return err
	}
	if _, err := w.Write(digest[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// Load reads a container written by Save, verifying its magic, version and
// integrity hash. A magic/hash mismatch is reported as sieveerr.KindBinCorrupt;
// a higher major version than CurrentVersionMajor is sieveerr.KindBinOutdated.
func Load(r io.Reader) (*Binary, error) {
	var preamble [38]byte // 4 magic + 2 version + 32 hash
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read container header", err)
	}
	if string(preamble[0:4]) != Magic {
		return nil, sieveerr.New(sieveerr.KindBinCorrupt, "not a compiled sieve script: bad magic")
	}
	versionMajor := preamble[4]
	versionMinor := preamble[5]
	if versionMajor > CurrentVersionMajor {
		return nil, sieveerr.New(sieveerr.KindBinOutdated,
			fmt.Sprintf("compiled script format v%d.%d is newer than this build supports (v%d.%d)",
				versionMajor, versionMinor, CurrentVersionMajor, CurrentVersionMinor))
	}
	var wantHash [32]byte
	copy(wantHash[:], preamble[6:38])

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read container body", err)
	}
	gotHash := blake2b.Sum256(body)
	if gotHash != wantHash {
		return nil, sieveerr.New(sieveerr.KindBinCorrupt, "compiled script failed integrity check")
	}

	bin := &Binary{VersionMajor: versionMajor, VersionMinor: versionMinor}
	br := bytes.NewReader(body)

	extCount, err := ReadUvarint(br)
	if err != nil {
		return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read extension table", err)
	}
	for i := uint64(0); i < extCount; i++ {
		name, err := ReadString(br)
		if err != nil {
			return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read extension name", err)
		}
		packedVersion, err := ReadUvarint(br)
		if err != nil {
			return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read extension version", err)
		}
		blockID, err := ReadUvarint(br)
		if err != nil {
			return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read extension block id", err)
		}
		bin.Extensions = append(bin.Extensions, ExtEntry{Name: name, Version: UnpackVersion(packedVersion), BlockID: uint32(blockID)})
	}

	blockCount, err := ReadUvarint(br)
	if err != nil {
		return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read block count", err)
	}
	for i := uint64(0); i < blockCount; i++ {
		blk, err := ReadBytes(br)
		if err != nil {
			return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read block", err)
		}
		bin.Blocks = append(bin.Blocks, blk)
	}

	meta, err := ReadBytes(br)
	if err != nil {
		return nil, sieveerr.Wrap(sieveerr.KindBinCorrupt, "read script metadata", err)
	}
	bin.Metadata = meta

	return bin, nil
}
