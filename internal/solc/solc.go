// Package solc drives the solc binary to compile contract sources into
// artifacts the deployer can load.
package solc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/config"
)

var (
	ErrVersionMismatch = errors.New("solc: compiler version mismatch")
	ErrNoSources       = errors.New("solc: no .sol sources found")
)

var versionRE = regexp.MustCompile(`Version:\s*(\d+\.\d+\.\d+)`)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Compiler compiles Solidity sources with fixed settings.
type Compiler struct {
	settings config.CompilerConfig
	run      Runner
	logger   *slog.Logger
}

// New creates a compiler using the system solc binary named in settings.
func New(settings config.CompilerConfig, logger *slog.Logger) *Compiler {
	if settings.SolcPath == "" {
		settings.SolcPath = "solc"
	}
	return &Compiler{settings: settings, run: execRunner, logger: logger}
}

// WithRunner replaces how solc is invoked.
func (c *Compiler) WithRunner(r Runner) *Compiler {
	c.run = r
	return c
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// Args returns the solc arguments for compiling sources.
func (c *Compiler) Args(sources []string) []string {
	args := []string{"--combined-json", "abi,bin", "--base-path", "."}
	if c.settings.Optimizer.Enabled {
		args = append(args, "--optimize", "--optimize-runs", strconv.Itoa(c.settings.Optimizer.Runs))
	}
	return append(args, sources...)
}

// Version returns the x.y.z version of the solc binary.
func (c *Compiler) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.settings.SolcPath, "--version")
	if err != nil {
		return "", fmt.Errorf("run %s --version: %w", c.settings.SolcPath, err)
	}
	m := versionRE.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("unrecognised solc version output: %q", strings.TrimSpace(string(out)))
	}
	return string(m[1]), nil
}

// Output is one compiled contract.
type Output struct {
	Source   string
	Name     string
	ABI      json.RawMessage
	Bytecode string
}

// Compile compiles every .sol file under sourcesDir and writes one artifact
// per contract into outDir. It returns the written paths.
func (c *Compiler) Compile(ctx context.Context, sourcesDir, outDir string) ([]string, error) {
	version, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	if version != c.settings.Version {
		return nil, fmt.Errorf("%w: %s is %s, config wants %s", ErrVersionMismatch, c.settings.SolcPath, version, c.settings.Version)
	}

	sources, err := findSources(sourcesDir)
	if err != nil {
		return nil, err
	}

	c.logger.Info("compiling contracts",
		slog.String("solc", c.settings.SolcPath),
		slog.String("version", version),
		slog.Int("sources", len(sources)),
		slog.Bool("optimizer", c.settings.Optimizer.Enabled),
		slog.Int("runs", c.settings.Optimizer.Runs),
	)

	start := time.Now()
	out, err := c.run(ctx, c.settings.SolcPath, c.Args(sources)...)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	outputs, err := ParseCombinedJSON(out)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		p, err := artifacts.Write(outDir, o.Source, o.Name, o.ABI, o.Bytecode)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	c.logger.Info("compilation finished",
		slog.Int("contracts", len(paths)),
		slog.Duration("duration", time.Since(start)),
	)
	return paths, nil
}

func findSources(dir string) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".sol" {
			sources = append(sources, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find sources in %s: %w", dir, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSources, dir)
	}
	sort.Strings(sources)
	return sources, nil
}

// ParseCombinedJSON parses `solc --combined-json abi,bin` output. Older
// compilers encode each ABI as a JSON string; both forms are accepted.
func ParseCombinedJSON(data []byte) ([]Output, error) {
	var combined struct {
		Contracts map[string]struct {
			ABI json.RawMessage `json:"abi"`
			Bin string          `json:"bin"`
		} `json:"contracts"`
	}
	if err := json.Unmarshal(data, &combined); err != nil {
		return nil, fmt.Errorf("parse solc output: %w", err)
	}

	keys := make([]string, 0, len(combined.Contracts))
	for k := range combined.Contracts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outputs := make([]Output, 0, len(keys))
	for _, key := range keys {
		i := strings.LastIndex(key, ":")
		if i < 0 {
			return nil, fmt.Errorf("parse solc output: malformed contract key %q", key)
		}
		entry := combined.Contracts[key]

		abiJSON := entry.ABI
		var encoded string
		if err := json.Unmarshal(abiJSON, &encoded); err == nil {
			abiJSON = json.RawMessage(encoded)
		}

		outputs = append(outputs, Output{
			Source:   strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(key[:i])), "/"),
			Name:     key[i+1:],
			ABI:      abiJSON,
			Bytecode: entry.Bin,
		})
	}
	return outputs, nil
}
