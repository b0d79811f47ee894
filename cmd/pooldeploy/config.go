package main

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/pooldeploy/internal/config"
)

var (
	configInitPath  string
	configInitForce bool
)

const configHeader = `# pooldeploy configuration
#
# Signing keys are never stored here. Public networks read the deployer
# key from the variable named by signer.key_env; use signer.type keystore
# or remote to keep the key off the machine environment entirely.
`

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Commands for managing the pooldeploy configuration file.`,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	initCmd.Flags().StringVar(&configInitPath, "path", "pooldeploy.yaml", "where to write the file")
	initCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configInitPath
	if path == "" {
		path = "pooldeploy.yaml"
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(config.Defaults())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(masked(cfg)); err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = out.Write(buf.Bytes())

	envs := secretEnvs(cfg)
	if len(envs) > 0 {
		fmt.Fprintln(out, "\n# secrets read from the environment")
		for _, name := range envs {
			state := "not set"
			if v, ok := os.LookupEnv(name); ok && v != "" {
				state = "set"
			}
			fmt.Fprintf(out, "#   %s: %s\n", name, state)
		}
	}
	return nil
}

// masked returns a copy of cfg safe to print.
func masked(cfg *config.Config) *config.Config {
	cp := *cfg
	cp.Networks = make(map[string]*config.NetworkConfig, len(cfg.Networks))
	for name, n := range cfg.Networks {
		nc := *n
		nc.RPCURL = maskURL(n.RPCURL)
		nc.Signer.Endpoint = maskURL(n.Signer.Endpoint)
		cp.Networks[name] = &nc
	}
	cp.Metrics.PushGateway = maskURL(cfg.Metrics.PushGateway)
	return &cp
}

// secretEnvs lists the environment variables the config reads secrets from.
func secretEnvs(cfg *config.Config) []string {
	seen := make(map[string]bool)
	for _, n := range cfg.Networks {
		for _, name := range []string{n.Signer.KeyEnv, n.Signer.PasswordEnv, n.Signer.APIKeyEnv} {
			if name != "" {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// tokenSegment matches path segments that look like provider API keys.
var tokenSegment = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)

const redacted = "redacted"

// maskURL hides credentials that RPC providers embed in URLs: userinfo,
// query strings and long key-like path segments.
func maskURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		u.RawQuery = redacted
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if tokenSegment.MatchString(seg) {
			segments[i] = redacted
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	return u.String()
}
