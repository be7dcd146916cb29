package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/zap"
)

const (
	snapshotMagic   = 0x53_4C_56_58 // "SLVX"
	snapshotVersion = 1

	blobFile = "index.bin"
	metaFile = "index_meta.json"
	lockFile = "index.lock"
)

type snapshotConfig struct {
	dir         string
	lockTimeout time.Duration
	logger      *zap.Logger
}

type snapshotMeta struct {
	Count     int        `json:"count"`
	Dimension int        `json:"dimension"`
	Entries   []Metadata `json:"entries"`
}

// Open loads an index snapshot from dir, or returns a fresh empty index
// when no snapshot exists. A corrupt or partially-written snapshot pair is
// logged and also falls back to a fresh empty index; losing a recoverable
// snapshot is an accepted tradeoff, crashing the worker is not. Only a
// lock-acquisition timeout is returned as an error.
func Open(dir string, dim int, lockTimeout time.Duration, logger *zap.Logger) (*Flat, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	f := New(dim)
	f.snapshot = &snapshotConfig{dir: dir, lockTimeout: lockTimeout, logger: logger}

	lock, err := acquireLock(filepath.Join(dir, lockFile), lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	blobPath := filepath.Join(dir, blobFile)
	metaPath := filepath.Join(dir, metaFile)
	if !fileExists(blobPath) || !fileExists(metaPath) {
		logger.Info("no index snapshot found, starting empty",
			zap.String("dir", dir), zap.Int("dimension", dim))
		return f, nil
	}

	vectors, blobDim, err := readBlob(blobPath)
	if err != nil {
		logger.Warn("index blob unreadable, starting empty", zap.Error(err))
		return New(dim).withSnapshot(f.snapshot), nil
	}

	meta, err := readMeta(metaPath)
	if err != nil {
		logger.Warn("index metadata unreadable, starting empty", zap.Error(err))
		return New(dim).withSnapshot(f.snapshot), nil
	}

	if blobDim != meta.Dimension || len(vectors) != meta.Count || len(meta.Entries) != meta.Count {
		logger.Warn("index snapshot pair inconsistent, starting empty",
			zap.Int("blob_dim", blobDim), zap.Int("meta_dim", meta.Dimension),
			zap.Int("blob_count", len(vectors)), zap.Int("meta_count", meta.Count))
		return New(dim).withSnapshot(f.snapshot), nil
	}
	if blobDim != dim {
		logger.Warn("index snapshot dimension differs from configured, starting empty",
			zap.Int("snapshot_dim", blobDim), zap.Int("configured_dim", dim))
		return New(dim).withSnapshot(f.snapshot), nil
	}

	f.vectors = vectors
	f.meta = meta.Entries
	logger.Info("loaded index snapshot",
		zap.Int("vectors", len(vectors)), zap.Int("dimension", dim))
	return f, nil
}

func (f *Flat) withSnapshot(cfg *snapshotConfig) *Flat {
	f.snapshot = cfg
	return f
}

// Save writes the full vector set and metadata to the snapshot location
// under the cross-process advisory lock. Both artifacts are written via
// temp file and rename so readers never observe a torn file.
func (f *Flat) Save() error {
	if f.snapshot == nil {
		return fmt.Errorf("vectorindex: no snapshot location configured")
	}

	lock, err := acquireLock(filepath.Join(f.snapshot.dir, lockFile), f.snapshot.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := writeBlob(filepath.Join(f.snapshot.dir, blobFile), f.vectors, f.dim); err != nil {
		return fmt.Errorf("write index blob: %w", err)
	}

	meta := snapshotMeta{Count: len(f.vectors), Dimension: f.dim, Entries: f.meta}
	if err := writeMeta(filepath.Join(f.snapshot.dir, metaFile), meta); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}

	f.snapshot.logger.Info("saved index snapshot",
		zap.Int("vectors", len(f.vectors)), zap.String("dir", f.snapshot.dir))
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Blob layout (snappy-compressed): magic u32 | version u32 | dim u32 |
// count u32 | count*dim float32, all little-endian.
func writeBlob(path string, vectors [][]float32, dim int) error {
	buf := make([]byte, 16+len(vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:8], snapshotVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(dim))     // #nosec G115 - dim is validated positive
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(vectors))) // #nosec G115

	off := 16
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(x))
			off += 4
		}
	}

	return atomicWrite(path, snappy.Encode(nil, buf))
}

func readBlob(path string) ([][]float32, int, error) {
	compressed, err := os.ReadFile(path) // #nosec G304 - path is under the configured index dir
	if err != nil {
		return nil, 0, fmt.Errorf("read blob: %w", err)
	}
	buf, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, 0, fmt.Errorf("decompress blob: %w", err)
	}
	if len(buf) < 16 {
		return nil, 0, fmt.Errorf("blob truncated: %d bytes", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != snapshotMagic {
		return nil, 0, fmt.Errorf("bad blob magic")
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != snapshotVersion {
		return nil, 0, fmt.Errorf("unsupported blob version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(buf[8:12]))
	count := int(binary.LittleEndian.Uint32(buf[12:16]))
	if dim <= 0 || count < 0 {
		return nil, 0, fmt.Errorf("invalid blob header: dim=%d count=%d", dim, count)
	}
	if len(buf) != 16+count*dim*4 {
		return nil, 0, fmt.Errorf("blob size mismatch: have %d bytes, want %d",
			len(buf), 16+count*dim*4)
	}

	vectors := make([][]float32, count)
	off := 16
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, dim, nil
}

func writeMeta(path string, meta snapshotMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

func readMeta(path string) (*snapshotMeta, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is under the configured index dir
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
