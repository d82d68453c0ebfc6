package openweather

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Cache file names inside a location's cache directory.
const (
	fileOneCall    = "onecall.json"
	fileAir        = "air.json"
	fileAirHistory = "air_history.json"
)

const zstdSuffix = ".zst"

// ErrNoCache is returned when a cached response is requested but was never
// written. Run once with refresh to populate it.
var ErrNoCache = errors.New("openweather: no cached response")

// cache stores raw response bodies under dir.
type cache struct {
	dir      string
	compress bool
}

func (c cache) path(name string) string {
	if c.compress {
		name += zstdSuffix
	}
	return filepath.Join(c.dir, name)
}

// file is one named response body.
type file struct {
	name string
	body []byte
}

// writeAll stores files as a set: every body is staged to a temp file in the
// cache directory before any of them is renamed over its destination. If
// staging fails, the existing cache is untouched.
func (c cache) writeAll(files []file) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	staged := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp) //nolint:errcheck // no-op after a successful rename
		}
	}()
	for _, f := range files {
		tmp, err := c.stage(f)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}

	for i, f := range files {
		if err := os.Rename(staged[i], c.path(f.name)); err != nil {
			return fmt.Errorf("rename %s: %w", f.name, err)
		}
	}
	return nil
}

// stage writes f's (optionally compressed) body to a temp file and returns
// its path.
func (c cache) stage(f file) (string, error) {
	data := f.body
	if c.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return "", fmt.Errorf("zstd writer: %w", err)
		}
		data = enc.EncodeAll(f.body, nil)
		enc.Close()
	}

	tmp, err := os.CreateTemp(c.dir, "."+f.name+".*")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", f.name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("write %s: %w", f.name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("close %s: %w", f.name, err)
	}
	return tmp.Name(), nil
}

// read returns the cached body for name.
func (c cache) read(name string) ([]byte, error) {
	data, err := os.ReadFile(c.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", c.path(name), ErrNoCache)
	}
	if err != nil {
		return nil, err
	}
	if !c.compress {
		return data, nil
	}

	dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func isNoCache(err error) bool {
	return errors.Is(err, ErrNoCache)
}
