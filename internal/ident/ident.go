// Package ident generates the ULID identifiers used throughout agenda and
// manages the persistent identity of a daemon instance. Every agendad process
// has a stable ULID that is generated on first start and stored in the data
// directory, so log lines and history records from the same deployment are
// traceable across restarts.
package ident

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const instanceIDFile = "instance_id"

// Instance holds the persistent identity of one agendad process.
type Instance struct {
	id      string
	dataDir string
}

// Load returns an Instance whose ID is read from dataDir/instance_id.
// If the file does not exist a new ULID is generated and written.
// A non-empty override other than "auto" is used verbatim (tests, containers).
func Load(dataDir, override string) (*Instance, error) {
	if dataDir == "" {
		return nil, errors.New("ident: dataDir must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("ident: create data dir: %w", err)
	}

	if override != "" && override != "auto" {
		if _, err := ulid.ParseStrict(override); err != nil {
			return nil, fmt.Errorf("ident: invalid id override %q: %w", override, err)
		}
		return &Instance{id: override, dataDir: dataDir}, nil
	}

	id, err := loadOrGenerate(dataDir)
	if err != nil {
		return nil, err
	}
	return &Instance{id: id, dataDir: dataDir}, nil
}

// ID returns the instance's stable ULID string.
func (in *Instance) ID() string { return in.id }

// DataDir returns the root data directory for this instance.
func (in *Instance) DataDir() string { return in.dataDir }

func loadOrGenerate(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := ulid.ParseStrict(id); perr != nil {
			return "", fmt.Errorf("ident: persisted id %q is invalid: %w", id, perr)
		}
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("ident: read id file: %w", err)
	}

	id, err := NewID()
	if err != nil {
		return "", fmt.Errorf("ident: generate id: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o640); err != nil {
		return "", fmt.Errorf("ident: persist id: %w", err)
	}
	return id, nil
}

// monoEntropy is a package-level monotone entropy source shared across all
// NewID calls. A single shared source keeps ULIDs lexicographically ordered
// even when several are generated within the same millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a fresh time-ordered ULID string. Used for event IDs,
// webhook subscription IDs, and instance identity.
func NewID() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewID is like NewID but panics on error. Use only in tests or init code.
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(fmt.Sprintf("ident.MustNewID: %v", err))
	}
	return id
}
