// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/binary"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/warecell-foundation/warecell/wire"
	"github.com/zeebo/blake3"
)

// Snapshot file layout:
//
//	magic (8 bytes) | compression tag (1) | uncompressed size (8, BE) |
//	BLAKE3 digest of uncompressed body (32) | compressed CBOR body
//
// The body is a snapshotBody encoded with deterministic CBOR (sorted
// map keys), so identical store contents produce identical files. The
// digest is computed over the uncompressed body and verified on load;
// a truncated or bit-flipped seed file is rejected rather than half
// applied.
//
// Order records are deliberately absent: orders are process-lifetime
// state (at-most-once per process), and a seed file exists to stage
// world state for offline testing, not to resurrect order history.

// snapshotMagic identifies a warecell snapshot file, version 1.
var snapshotMagic = [8]byte{'W', 'C', 'S', 'N', 'A', 'P', '0', '1'}

// CompressionTag identifies the snapshot body compression. The values
// are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the body uncompressed.
	CompressionNone CompressionTag = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 CompressionTag = 1
	// CompressionZstd uses zstd at the default level. The right
	// choice for the JSON-shaped payloads a snapshot holds.
	CompressionZstd CompressionTag = 2
)

// String returns the tag's human-readable name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a tag name as used in config files and
// command-line flags.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("state: unknown compression tag %q", name)
	}
}

type snapshotBody struct {
	SavedAt time.Time       `cbor:"saved_at"`
	Entries []snapshotEntry `cbor:"entries"`
}

type snapshotEntry struct {
	Category   Category        `cbor:"category"`
	Key        string          `cbor:"key"`
	Topic      string          `cbor:"topic"`
	Kind       wire.Kind       `cbor:"kind"`
	ReceivedAt time.Time       `cbor:"received_at"`
	Payload    cbor.RawMessage `cbor:"payload"`
}

// Deterministic CBOR encoding (sorted keys, smallest integers) so the
// same logical snapshot is byte-identical.
var (
	snapEncMode cbor.EncMode
	snapDecMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic("state: CBOR encoder initialization failed: " + err.Error())
	}
	snapEncMode = mode

	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("state: CBOR decoder initialization failed: " + err.Error())
	}
	snapDecMode = dec
}

// WriteSnapshot dumps the store's entity categories to path using the
// given compression tag. Contents are copied under the read lock and
// encoded afterwards, so the store stays writable during the dump.
func (s *Store) WriteSnapshot(path string, tag CompressionTag) error {
	type item struct {
		category Category
		key      string
		env      wire.Envelope
	}

	s.mu.RLock()
	var items []item
	for category, bucket := range s.entries {
		for key, env := range bucket {
			items = append(items, item{category: category, key: key, env: env})
		}
	}
	s.mu.RUnlock()

	body := snapshotBody{SavedAt: time.Now().UTC()}
	for _, it := range items {
		payload, err := snapEncMode.Marshal(it.env.Payload)
		if err != nil {
			return fmt.Errorf("state: encoding %s/%s payload: %w", it.category, it.key, err)
		}
		body.Entries = append(body.Entries, snapshotEntry{
			Category:   it.category,
			Key:        it.key,
			Topic:      it.env.Topic,
			Kind:       it.env.Kind,
			ReceivedAt: it.env.ReceivedAt,
			Payload:    payload,
		})
	}

	// Entry order must not depend on map iteration.
	sortEntries(body.Entries)

	raw, err := snapEncMode.Marshal(body)
	if err != nil {
		return fmt.Errorf("state: encoding snapshot body: %w", err)
	}

	compressed, tag, err := compressBody(raw, tag)
	if err != nil {
		return err
	}

	digest := blake3.Sum256(raw)

	out := make([]byte, 0, len(snapshotMagic)+1+8+len(digest)+len(compressed))
	out = append(out, snapshotMagic[:]...)
	out = append(out, byte(tag))
	out = binary.BigEndian.AppendUint64(out, uint64(len(raw)))
	out = append(out, digest[:]...)
	out = append(out, compressed...)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("state: writing snapshot: %w", err)
	}
	return nil
}

// LoadSeed reads a snapshot file written by WriteSnapshot and applies
// its entries through Put, so seed entries respect the same
// last-write-wins rule as live traffic. Returns the number of entries
// applied. Call once at process start, before the listener connects.
func (s *Store) LoadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("state: reading seed: %w", err)
	}

	headerLen := len(snapshotMagic) + 1 + 8 + 32
	if len(data) < headerLen {
		return 0, fmt.Errorf("state: seed file truncated (%d bytes)", len(data))
	}
	if string(data[:8]) != string(snapshotMagic[:]) {
		return 0, fmt.Errorf("state: not a warecell snapshot file")
	}

	tag := CompressionTag(data[8])
	rawSize := binary.BigEndian.Uint64(data[9:17])
	var digest [32]byte
	copy(digest[:], data[17:49])

	raw, err := decompressBody(data[headerLen:], tag, int(rawSize))
	if err != nil {
		return 0, err
	}
	if blake3.Sum256(raw) != digest {
		return 0, fmt.Errorf("state: seed digest mismatch; file corrupt")
	}

	var body snapshotBody
	if err := snapDecMode.Unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("state: decoding snapshot body: %w", err)
	}

	applied := 0
	for _, entry := range body.Entries {
		payload, err := decodeSeedPayload(entry.Category, entry.Payload)
		if err != nil {
			return applied, fmt.Errorf("state: seed entry %s/%s: %w", entry.Category, entry.Key, err)
		}
		env := wire.Envelope{
			Topic:      entry.Topic,
			Kind:       entry.Kind,
			Payload:    payload,
			ReceivedAt: entry.ReceivedAt,
		}
		if s.Put(entry.Category, entry.Key, env) {
			applied++
		}
	}
	return applied, nil
}

// decodeSeedPayload picks the concrete payload type from the entry's
// category. The category, not the kind, is authoritative here: a
// Boxes entry holds a single Box, not the detection frame it was
// fanned out of.
func decodeSeedPayload(category Category, raw cbor.RawMessage) (wire.Payload, error) {
	switch category {
	case Boxes:
		var box wire.Box
		if err := snapDecMode.Unmarshal(raw, &box); err != nil {
			return nil, err
		}
		return box, nil
	case Fiducials:
		var fiducial wire.Fiducial
		if err := snapDecMode.Unmarshal(raw, &fiducial); err != nil {
			return nil, err
		}
		return fiducial, nil
	case Modules:
		var module wire.ModulePose
		if err := snapDecMode.Unmarshal(raw, &module); err != nil {
			return nil, err
		}
		return module, nil
	case Regions:
		var region wire.Region
		if err := snapDecMode.Unmarshal(raw, &region); err != nil {
			return nil, err
		}
		return region, nil
	case Master:
		var master wire.MasterState
		if err := snapDecMode.Unmarshal(raw, &master); err != nil {
			return nil, err
		}
		return master, nil
	case Logs:
		var line wire.LogMessage
		if err := snapDecMode.Unmarshal(raw, &line); err != nil {
			return nil, err
		}
		return line, nil
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}

func sortEntries(entries []snapshotEntry) {
	slices.SortFunc(entries, func(a, b snapshotEntry) int {
		if a.Category != b.Category {
			return strings.Compare(string(a.Category), string(b.Category))
		}
		return compareKeys(a.Key, b.Key)
	})
}
