package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/any-hub/doc-bridge/internal/artifact"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStore 通过 entryLock 串行化同一条目的并发写入。
type fileStore struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Has(ctx context.Context, coord Coordinate, kind string) bool {
	if ctx.Err() != nil {
		return false
	}
	filePath, err := s.entryPath(coord, kind)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	return err == nil && !info.IsDir()
}

func (s *fileStore) Get(ctx context.Context, coord Coordinate, kind string) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(coord, kind)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReadResult{
		Entry: Entry{
			Coordinate: coord,
			Kind:       kind,
			FilePath:   filePath,
			SizeBytes:  info.Size(),
			ModTime:    info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, coord Coordinate, kind string, body io.Reader) (*Entry, error) {
	filePath, err := s.entryPath(coord, kind)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Op: "mkdir", Path: dir, Err: err}
	}

	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return nil, &WriteError{Op: "create", Path: dir, Err: err}
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, &WriteError{Op: "write", Path: filePath, Err: err}
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, &WriteError{Op: "rename", Path: filePath, Err: err}
	}

	return &Entry{
		Coordinate: coord,
		Kind:       kind,
		FilePath:   filePath,
		SizeBytes:  written,
		ModTime:    s.now().UTC(),
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, coord Coordinate, kind string) error {
	filePath, err := s.entryPath(coord, kind)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) entryPath(coord Coordinate, kindKey string) (string, error) {
	if err := coord.Validate(); err != nil {
		return "", err
	}
	kind, ok := artifact.Resolve(kindKey)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kindKey)
	}
	return filepath.Join(s.basePath, KeyFor(coord), kind.FileName()), nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
