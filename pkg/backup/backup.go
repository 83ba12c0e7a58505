// Package backup implements spec.md §2's Backup/Restore Adapter: it
// produces a self-describing segment file of one region's key range at
// a given backup_ts, and consumes that file back into a (possibly
// different) region's KV Adapter on restore. The exact on-disk layout
// beyond "self-describing segment" is left to this package's own
// design, per spec.md §1's non-goal on backup file wire formats.
package backup

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/log"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// formatVersion guards against decoding a segment file written by an
// incompatible future version of this package.
const formatVersion = 1

// segmentCFs lists the CFs a backup walks, in the fixed order they're
// written and read back — Data before Write so a restore's replay
// never has a Write record point at a Data entry that hasn't landed
// yet, even though Write only applies when that CF's loop runs.
var segmentCFs = []kvengine.CF{kvengine.CFData, kvengine.CFLock, kvengine.CFWrite}

// Manifest is the self-describing header every segment file carries:
// enough to tell a restore whether the file matches the region it's
// about to overwrite, and to let an operator list backups without
// reading past the header.
type Manifest struct {
	FormatVersion int
	GenerationID  string
	RegionID      uint64
	StartKey      []byte
	EndKey        []byte
	BackupTS      uint64
	EntryCount    int
}

type segment struct {
	CF      kvengine.CF
	Entries []kvengine.Entry
}

type file struct {
	Manifest Manifest
	Segments []segment
}

// Backup writes a segment file covering [startKey, endKey) of regionID
// as of backupTS to w. A Write CF entry newer than backupTS (i.e. its
// decoded commit_ts exceeds backupTS) is excluded — everything else in
// range is copied as-is, since Data/Lock entries carry no commit_ts of
// their own to filter by and a lock present at snapshot time belongs
// to the backup regardless of when it was acquired.
func Backup(ctx context.Context, kv kvengine.Adapter, regionID uint64, startKey, endKey []byte, backupTS uint64, w io.Writer) (Manifest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BackupDuration)

	logger := log.WithComponent("backup")

	snap, err := kv.Snapshot()
	if err != nil {
		return Manifest{}, fmt.Errorf("open backup snapshot: %w", err)
	}
	defer snap.Close()

	f := file{Manifest: Manifest{
		FormatVersion: formatVersion,
		GenerationID:  uuid.NewString(),
		RegionID:      regionID,
		StartKey:      startKey,
		EndKey:        endKey,
		BackupTS:      backupTS,
	}}

	for _, cf := range segmentCFs {
		seg, err := readSegment(kv, snap, cf, startKey, endKey, backupTS)
		if err != nil {
			return Manifest{}, err
		}
		f.Manifest.EntryCount += len(seg.Entries)
		f.Segments = append(f.Segments, seg)
	}

	if err := gob.NewEncoder(w).Encode(f); err != nil {
		return Manifest{}, fmt.Errorf("encode backup segment: %w", err)
	}

	logger.Info().
		Uint64("region_id", regionID).
		Uint64("backup_ts", backupTS).
		Str("generation_id", f.Manifest.GenerationID).
		Int("entries", f.Manifest.EntryCount).
		Msg("backup complete")
	return f.Manifest, nil
}

func readSegment(kv kvengine.Adapter, snap kvengine.Snapshot, cf kvengine.CF, startKey, endKey []byte, backupTS uint64) (segment, error) {
	cursor, err := kv.Iter(cf, startKey, endKey, snap)
	if err != nil {
		return segment{}, fmt.Errorf("iterate %s: %w", cf, err)
	}
	defer cursor.Close()

	seg := segment{CF: cf}
	for cursor.Next() {
		entry := cursor.Entry()
		if cf == kvengine.CFWrite {
			_, commitTS, err := codec.DecodeWrite(entry.Key)
			if err != nil {
				return segment{}, dingoerr.New(dingoerr.CorruptedInternalKey, "backup: %v", err)
			}
			if commitTS > backupTS {
				continue
			}
		}
		seg.Entries = append(seg.Entries, kvengine.Entry{
			Key:   append([]byte(nil), entry.Key...),
			Value: append([]byte(nil), entry.Value...),
		})
	}
	if err := cursor.Err(); err != nil {
		return segment{}, fmt.Errorf("read %s cursor: %w", cf, err)
	}
	return seg, nil
}

// Restore replays a segment file read from r into kv, returning the
// Manifest it was built from. The caller is responsible for directing
// r at a region whose epoch and key range are compatible with the
// manifest — this package only knows about bytes, not region
// metadata, and restoring into a mismatched region silently imports
// overlapping but wrong data.
func Restore(ctx context.Context, kv kvengine.Adapter, r io.Reader) (Manifest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RestoreDuration)

	var f file
	if err := gob.NewDecoder(r).Decode(&f); err != nil {
		return Manifest{}, fmt.Errorf("decode backup segment: %w", err)
	}
	if f.Manifest.FormatVersion != formatVersion {
		return Manifest{}, dingoerr.New(dingoerr.IllegalParameter, "unsupported backup format version %d", f.Manifest.FormatVersion)
	}

	const batchSize = 512
	var batch []kvengine.Op
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := kv.Write(ctx, batch); err != nil {
			return fmt.Errorf("restore write batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, seg := range f.Segments {
		for _, entry := range seg.Entries {
			batch = append(batch, kvengine.PutOp(seg.CF, entry.Key, entry.Value))
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return Manifest{}, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return Manifest{}, err
	}

	log.WithComponent("backup").Info().
		Uint64("region_id", f.Manifest.RegionID).
		Str("generation_id", f.Manifest.GenerationID).
		Int("entries", f.Manifest.EntryCount).
		Msg("restore complete")
	return f.Manifest, nil
}

// PeekManifest reads only the Manifest from a segment file, for
// listing backups without replaying their contents. It buffers the
// whole file in memory since gob's stream format doesn't support
// decoding a prefix of a struct independently of the rest — acceptable
// for the "simple self-describing segment" this package targets, not
// for multi-gigabyte production backups.
func PeekManifest(r io.Reader) (Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, err
	}
	var f file
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return Manifest{}, fmt.Errorf("decode backup segment: %w", err)
	}
	return f.Manifest, nil
}
