// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// ErrFileNotFound is returned by loads and deletes of missing files.
var ErrFileNotFound = errors.New("file not found")

// FileStorage stores documents under BaseDir with atomic writes and a small read cache.
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // path -> *sync.RWMutex

	cache        map[string]*CacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// CacheEntry is a cached file body.
type CacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	fs := &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]*CacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
		stopCleanup:  make(chan struct{}),
	}
	fs.StartCacheCleanup()

	return fs, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile writes content to a temp file and renames it into place.
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			utils.GetLogger().Warn("temp file cleanup failed", map[string]interface{}{
				"path":  tempPath,
				"error": removeErr,
			})
		}
		return fmt.Errorf("rename temp file: %w", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return fs.SaveTextFile(dirPath, filename, content)
}

// LoadTextFile returns the file body, served from cache while fresh.
func (fs *FileStorage) LoadTextFile(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Join(dirPath, filename))
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	fs.updateCache(fullPath, content)
	return content, nil
}

func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadTextFile(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("unmarshal json %s: %w", filename, err)
	}
	return nil
}

func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	_, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	return err == nil
}

func (fs *FileStorage) DeleteFile(dirPath, filename string) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Join(dirPath, filename))
		}
		return fmt.Errorf("delete file: %w", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// ListFiles returns the names in dirPath ending with ext, sorted. A missing
// directory is an empty listing.
func (fs *FileStorage) ListFiles(dirPath, ext string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, dirPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// StartCacheCleanup evicts stale entries every two minutes until Close.
func (fs *FileStorage) StartCacheCleanup() {
	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fs.cleanupExpiredCache()
				fs.enforceMaxCacheSize()
			case <-fs.stopCleanup:
				return
			}
		}
	}()
}

func (fs *FileStorage) Close() error {
	fs.stopOnce.Do(func() { close(fs.stopCleanup) })
	return nil
}

func (fs *FileStorage) cached(path string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()

	entry, ok := fs.cache[path]
	if !ok || time.Since(entry.Timestamp) >= fs.cacheExpiry {
		return nil, false
	}
	return entry.Data, true
}

func (fs *FileStorage) updateCache(path string, data []byte) {
	fs.cacheMutex.Lock()
	fs.cache[path] = &CacheEntry{Data: data, Timestamp: time.Now()}
	fs.cacheMutex.Unlock()

	fs.enforceMaxCacheSize()
}

func (fs *FileStorage) cleanupExpiredCache() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	now := time.Now()
	for path, entry := range fs.cache {
		if now.Sub(entry.Timestamp) > fs.cacheExpiry {
			delete(fs.cache, path)
		}
	}
}

// enforceMaxCacheSize drops the oldest entries above maxCacheSize.
func (fs *FileStorage) enforceMaxCacheSize() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	if len(fs.cache) <= fs.maxCacheSize {
		return
	}

	type keyTime struct {
		key string
		ts  time.Time
	}
	entries := make([]keyTime, 0, len(fs.cache))
	for key, entry := range fs.cache {
		entries = append(entries, keyTime{key, entry.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

	for _, e := range entries[:len(entries)-fs.maxCacheSize] {
		delete(fs.cache, e.key)
	}
}

func (fs *FileStorage) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	delete(fs.cache, path)
	fs.cacheMutex.Unlock()
}
