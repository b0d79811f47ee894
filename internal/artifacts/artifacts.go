// Package artifacts loads compiled contract artifacts from disk.
//
// Both the Hardhat layout (artifacts/contracts/X.sol/X.json with a string
// bytecode) and the Foundry layout (out/X.sol/X.json with a bytecode
// object) are understood.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const hardhatFormat = "hh-sol-artifact-1"

var (
	ErrNotFound      = errors.New("artifacts: contract not found")
	ErrAmbiguous     = errors.New("artifacts: contract name defined more than once")
	ErrNoBytecode    = errors.New("artifacts: contract has no deployable bytecode")
	ErrUnlinkedCode  = errors.New("artifacts: bytecode has unlinked library references")
	ErrMissingSource = errors.New("artifacts: missing contracts")
)

// Bytecode handles both artifact formats:
// - Simple string: "0x608060..."
// - Object with "object" field: {"object": "0x608060..."}
type Bytecode string

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Bytecode(s)
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*b = Bytecode(obj.Object)
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// Bytes decodes the bytecode, refusing empty and unlinked code.
func (b Bytecode) Bytes() ([]byte, error) {
	s := strings.TrimSpace(string(b))
	if strings.Contains(s, "__") {
		return nil, ErrUnlinkedCode
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	if s == "0x" {
		return nil, ErrNoBytecode
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}
	return code, nil
}

// file is the on-disk artifact shape.
type file struct {
	Format       string          `json:"_format,omitempty"`
	ContractName string          `json:"contractName,omitempty"`
	SourceName   string          `json:"sourceName,omitempty"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
}

// Contract is a compiled contract ready to deploy or call.
type Contract struct {
	Name     string
	Source   string
	Path     string
	ABI      abi.ABI
	Bytecode Bytecode
}

// DeployCode returns the creation bytecode.
func (c *Contract) DeployCode() ([]byte, error) {
	code, err := c.Bytecode.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	return code, nil
}

// Store indexes the artifacts found under a directory.
type Store struct {
	dir       string
	contracts map[string][]*Contract
}

// Open walks dir and indexes every contract artifact in it. Debug files and
// build-info directories are skipped.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, contracts: make(map[string][]*Contract)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" || d.Name() == "cache" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		c, err := load(path)
		if err != nil {
			return err
		}
		if c != nil {
			s.contracts[c.Name] = append(s.contracts[c.Name], c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load artifacts from %s: %w", dir, err)
	}
	return s, nil
}

// load parses one artifact file. Files without an ABI are not artifacts and
// yield nil.
func load(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.ABI) == 0 {
		return nil, nil
	}

	parsed, err := abi.JSON(strings.NewReader(string(f.ABI)))
	if err != nil {
		return nil, fmt.Errorf("parse ABI in %s: %w", path, err)
	}

	name := f.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &Contract{
		Name:     name,
		Source:   f.SourceName,
		Path:     path,
		ABI:      parsed,
		Bytecode: f.Bytecode,
	}, nil
}

// Dir returns the directory the store was opened from.
func (s *Store) Dir() string {
	return s.dir
}

// Contract returns the artifact for name.
func (s *Store) Contract(name string) (*Contract, error) {
	found := s.contracts[name]
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.dir)
	case 1:
		return found[0], nil
	default:
		paths := make([]string, len(found))
		for i, c := range found {
			paths[i] = c.Path
		}
		return nil, fmt.Errorf("%w: %s (%s)", ErrAmbiguous, name, strings.Join(paths, ", "))
	}
}

// Require checks that every named contract is present and deployable,
// reporting all problems at once.
func (s *Store) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		c, err := s.Contract(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		if _, err := c.DeployCode(); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", name, err))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w in %s: %s", ErrMissingSource, s.dir, strings.Join(missing, ", "))
	}
	return nil
}

// Names returns the indexed contract names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.contracts))
	for name := range s.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write stores an artifact in the Hardhat layout under
// dir/<source>/<name>.json. The file is replaced atomically.
func Write(dir, sourceName, name string, abiJSON json.RawMessage, bytecode string) (string, error) {
	if !strings.HasPrefix(bytecode, "0x") {
		bytecode = "0x" + bytecode
	}
	data, err := json.MarshalIndent(file{
		Format:       hardhatFormat,
		ContractName: name,
		SourceName:   sourceName,
		ABI:          abiJSON,
		Bytecode:     Bytecode(bytecode),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", name, err)
	}

	target := filepath.Join(dir, filepath.FromSlash(sourceName), name+".json")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return target, nil
}
