package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// envFile applies a .env file to the process environment. Variables that were
// already set when the file was first applied keep their value. Variables the
// file set itself are refreshed on every apply, so edits take effect on
// reload, and are unset when removed from the file.
type envFile struct {
	path string

	mu    sync.Mutex
	owned map[string]bool
}

// dotenv is the .env file in the working directory.
var dotenv = &envFile{path: ".env"}

// apply reads the file and updates the environment. A missing file is not an
// error.
func (f *envFile) apply() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	vars, err := godotenv.Read(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		vars = nil
	} else if err != nil {
		return fmt.Errorf("config: read %s: %w", f.path, err)
	}
	if f.owned == nil {
		f.owned = make(map[string]bool)
	}

	for key := range f.owned {
		if _, ok := vars[key]; !ok {
			os.Unsetenv(key) //nolint:errcheck
			delete(f.owned, key)
		}
	}
	for key, val := range vars {
		if _, set := os.LookupEnv(key); set && !f.owned[key] {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
		f.owned[key] = true
	}
	return nil
}
