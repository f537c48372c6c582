package cache

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bibfetch/bibfetch/internal/domain"
)

const (
	entryExt     = ".json"
	entryExtGzip = ".json.gz"
)

// entry is the on-disk representation of one cached fetch run.
type entry struct {
	Query    string       `json:"query"`
	StoredAt time.Time    `json:"stored_at"`
	Rows     []domain.Row `json:"rows"`
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Dir is the cache directory, created if absent.
	Dir string

	// Compression enables gzip compression of entries.
	Compression bool

	// MaxAge is the entry age after which Get treats an entry as absent.
	// Zero disables expiry.
	MaxAge time.Duration
}

// lockStripes is the size of the striped lock set. Keys hash onto a
// stripe, so the lock footprint stays fixed no matter how many distinct
// queries the store has seen.
const lockStripes = 64

// FileStore implements Store on a directory of per-query files. The
// directory is the single source of truth: nothing is duplicated in
// memory, so multiple FileStore instances may point at the same location.
//
// Writes go to a temp file in the same directory and are renamed into
// place, so readers see either the old entry or the new one, never a
// partial write. Operations on the same key are serialized through its
// lock stripe; different keys rarely contend.
type FileStore struct {
	cfg    FileStoreConfig
	logger zerolog.Logger
	locks  [lockStripes]sync.Mutex
}

// Ensure FileStore implements the Store interface.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at cfg.Dir.
func NewFileStore(cfg FileStoreConfig, logger zerolog.Logger) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &FileStore{
		cfg:    cfg,
		logger: logger.With().Str("component", "file-cache").Logger(),
	}, nil
}

// keyLock returns the stripe mutex serializing operations for one key.
func (s *FileStore) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// path returns the entry file path for a key.
func (s *FileStore) path(key string) string {
	if s.cfg.Compression {
		return filepath.Join(s.cfg.Dir, key+entryExtGzip)
	}
	return filepath.Join(s.cfg.Dir, key+entryExt)
}

// Get returns the rows stored under key. Any I/O or decode error is a
// cache miss: the caller re-fetches and overwrites the bad entry.
func (s *FileStore) Get(key string) ([]domain.Row, bool) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.readEntry(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("cache_key", key).Msg("unreadable cache entry, treating as miss")
		}
		return nil, false
	}

	if s.cfg.MaxAge > 0 && time.Since(e.StoredAt) > s.cfg.MaxAge {
		s.logger.Debug().Str("cache_key", key).Time("stored_at", e.StoredAt).Msg("cache entry expired")
		return nil, false
	}

	return e.Rows, true
}

// Put stores rows under key, replacing any prior entry atomically.
func (s *FileStore) Put(key, query string, rows []domain.Row) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	e := entry{
		Query:    query,
		StoredAt: time.Now().UTC(),
		Rows:     rows,
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.cfg.Dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := s.writeEntry(tmp, &e); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	// Rename within the same directory is atomic on POSIX filesystems.
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing cache entry: %w", err)
	}

	return nil
}

// Delete removes the entry stored under key.
func (s *FileStore) Delete(key string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Keys enumerates all stored entries. Unreadable entries are skipped.
func (s *FileStore) Keys() ([]KeyInfo, error) {
	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache directory: %w", err)
	}

	infos := make([]KeyInfo, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}

		name := f.Name()
		var key string
		switch {
		case strings.HasSuffix(name, entryExtGzip):
			key = strings.TrimSuffix(name, entryExtGzip)
		case strings.HasSuffix(name, entryExt):
			key = strings.TrimSuffix(name, entryExt)
		default:
			continue
		}

		e, err := s.readEntry(filepath.Join(s.cfg.Dir, name))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable cache entry")
			continue
		}

		infos = append(infos, KeyInfo{
			Key:      key,
			Query:    e.Query,
			StoredAt: e.StoredAt,
		})
	}

	return infos, nil
}

// readEntry decodes one entry file, transparently handling compression
// based on the file extension.
func (s *FileStore) readEntry(path string) (*entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, entryExtGzip) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var e entry
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &e, nil
}

// writeEntry encodes one entry to w, compressing when configured.
func (s *FileStore) writeEntry(w io.Writer, e *entry) error {
	if s.cfg.Compression {
		gz := gzip.NewWriter(w)
		if err := json.NewEncoder(gz).Encode(e); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	}
	return json.NewEncoder(w).Encode(e)
}
