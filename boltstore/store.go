// Package boltstore keeps persist archives in a bbolt database, one record
// per key, so that a tool can cache many object graphs in a single file.
package boltstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"

	"github.com/cwbaker/persist"
)

var (
	ErrNotFound         = errors.New("boltstore: key not found")
	ErrEncodingMismatch = errors.New("boltstore: encoding mismatch")
)

const DefaultBucket = "archives"

type Options struct {
	// Bucket holds the records; DefaultBucket if empty.
	Bucket string

	// Timeout bounds waiting for the file lock; 10s if zero.
	Timeout time.Duration

	// Compress gzips archives on Save. Load handles both.
	Compress bool

	// Dir is the directory archives are considered to live in, so that
	// PathFilter fields are stored relative to it.
	Dir string

	IsTesting bool
	Logger    *slog.Logger
}

// Store is a bbolt-backed archive store. It is safe for concurrent use.
type Store struct {
	bdb      *bbolt.DB
	bucket   string
	compress bool
	dir      string
	logger   *slog.Logger
}

func Open(path string, opt Options) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}

	s := &Store{
		bdb:      bdb,
		bucket:   opt.Bucket,
		compress: opt.Compress,
		dir:      opt.Dir,
		logger:   opt.Logger,
	}
	if s.bucket == "" {
		s.bucket = DefaultBucket
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(unsafeBytesFromString(s.bucket))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("boltstore: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.bdb.Close()
}

func (s *Store) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *Store) archivePath(key string) string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, key)
}

// Save writes obj as the root object called name and stores it under key,
// replacing any previous record.
func (s *Store) Save(key string, w *persist.Writer, name string, obj any) error {
	var buf bytes.Buffer
	if err := w.WriteTo(&buf, s.archivePath(key), name, obj); err != nil {
		return err
	}
	rec := record{
		Flags:    rfDefault,
		Encoding: w.Encoding(),
		Version:  uint64(max(w.Options().Version, 0)),
		Format:   w.Options().Format,
		Data:     buf.Bytes(),
	}
	if s.compress {
		rec.Flags |= rfGzip
		rec.Data = gzipBytes(rec.Data)
	}

	err := s.bdb.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(s.bucket))
		k := []byte(key)
		if old := b.Get(k); old != nil {
			var prev record
			if err := prev.decode(old); err == nil {
				rec.ModCount = prev.ModCount + 1
			}
		}
		return b.Put(k, rec.encode())
	})
	if err != nil {
		return fmt.Errorf("boltstore: saving %s: %w", key, err)
	}
	s.logger.Debug("boltstore: saved", slog.String("key", key), slog.String("encoding", rec.Encoding.String()), slog.Uint64("mod", rec.ModCount), slog.Int("bytes", buf.Len()), slog.Int("stored", len(rec.Data)))
	return nil
}

// Load reads the record under key into obj with r, which must use the
// encoding the record was saved with.
func (s *Store) Load(key string, r *persist.Reader, name string, obj any) error {
	var data []byte
	var rec record
	err := s.view(key, func(raw []byte) error {
		if err := rec.decode(raw); err != nil {
			return err
		}
		if rec.Encoding != r.Encoding() {
			return fmt.Errorf("%w: %s is %v, reader wants %v", ErrEncodingMismatch, key, rec.Encoding, r.Encoding())
		}
		if v := r.Options().Version; v > 0 && rec.Version > uint64(v) {
			return &persist.InvalidVersionError{Path: s.archivePath(key), Version: int(rec.Version), Supported: v}
		}
		var err error
		data, err = rec.archive()
		if err == nil && !rec.compressed() {
			data = bytes.Clone(data)
		}
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Debug("boltstore: loading", slog.String("key", key), slog.String("encoding", rec.Encoding.String()), slog.Uint64("mod", rec.ModCount), slog.Int("bytes", len(data)))
	return r.ReadFrom(bytes.NewReader(data), s.archivePath(key), name, obj)
}

func (s *Store) view(key string, f func(raw []byte) error) error {
	return s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(s.bucket))
		raw := b.Get(unsafeBytesFromString(key))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return f(raw)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(unsafeBytesFromString(s.bucket)).Delete([]byte(key))
	})
}

// Keys returns all stored keys in byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		return btx.Bucket(unsafeBytesFromString(s.bucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

type Info struct {
	Key        string
	Encoding   persist.Encoding
	Format     string
	Version    int
	ModCount   uint64
	Size       int
	Compressed bool
}

func (s *Store) Info(key string) (Info, error) {
	var info Info
	err := s.view(key, func(raw []byte) error {
		var rec record
		if err := rec.decode(raw); err != nil {
			return err
		}
		info = rec.info(key)
		return nil
	})
	return info, err
}

// List returns the Info of every record in key order. Records that fail
// to decode are logged and skipped.
func (s *Store) List() ([]Info, error) {
	var infos []Info
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		return btx.Bucket(unsafeBytesFromString(s.bucket)).ForEach(func(k, v []byte) error {
			var rec record
			if err := rec.decode(v); err != nil {
				s.logger.Warn("boltstore: skipping bad record", slog.String("key", string(k)), slog.Any("err", err))
				return nil
			}
			infos = append(infos, rec.info(string(k)))
			return nil
		})
	})
	return infos, err
}

func (rec *record) info(key string) Info {
	return Info{
		Key:        key,
		Encoding:   rec.Encoding,
		Format:     rec.Format,
		Version:    int(rec.Version),
		ModCount:   rec.ModCount,
		Size:       len(rec.Data),
		Compressed: rec.compressed(),
	}
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
