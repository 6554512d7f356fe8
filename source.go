package argon2wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Source fetches the Argon2 module binary.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// BytesSource serves a module binary already in memory, e.g. one embedded
// with go:embed.
type BytesSource []byte

// Fetch returns the binary.
func (s BytesSource) Fetch(context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("empty module binary")
	}
	return s, nil
}

// FileSource reads the module binary from a filesystem.
type FileSource struct {
	FS   fs.FS
	Path string
}

// Fetch reads Path from FS.
func (s FileSource) Fetch(context.Context) ([]byte, error) {
	return fs.ReadFile(s.FS, s.Path)
}

// maxModuleSize bounds HTTP downloads.
const maxModuleSize = 64 << 20

// HTTPSource downloads the module binary.
type HTTPSource struct {
	URL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Fetch performs a GET on URL.
func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", s.URL, resp.Status)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.URL, err)
	}
	if n > maxModuleSize {
		return nil, fmt.Errorf("GET %s: module larger than %d bytes", s.URL, maxModuleSize)
	}
	return buf.Bytes(), nil
}

// Memoize wraps src so that the first successful fetch is shared by every
// later caller. Concurrent first callers share one fetch; each waits only
// as long as its own context allows. Failed fetches are not remembered,
// so a later call retries.
func Memoize(src Source) Source {
	if m, ok := src.(*memoSource); ok {
		return m
	}
	return &memoSource{src: src}
}

type memoSource struct {
	src   Source
	group singleflight.Group

	mu   sync.RWMutex
	code []byte
}

func (m *memoSource) cached() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

func (m *memoSource) Fetch(ctx context.Context) ([]byte, error) {
	if code := m.cached(); code != nil {
		return code, nil
	}

	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("module", func() (any, error) {
		if code := m.cached(); code != nil {
			return code, nil
		}
		code, err := m.src.Fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.code = code
		m.mu.Unlock()
		return code, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}
