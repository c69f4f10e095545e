package main

import (
	"fmt"
	"os"
	"strings"

	cachering "go-cachering"
	"go-cachering/database"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// clusterConfig is the layout of the --config file.
type clusterConfig struct {
	Members      []string `yaml:"members"`
	NumOwners    int      `yaml:"num_owners"`
	Hash         string   `yaml:"hash"`
	SenderPolicy string   `yaml:"sender_policy"`
	Self         string   `yaml:"self"`
	Store        struct {
		DatabaseURL string               `yaml:"database_url"`
		Table       database.TableConfig `yaml:"table"`
	} `yaml:"store"`
}

// loadConfig reads the --config file, if any, and lets explicitly set flags
// override its values.
func loadConfig(cmd *cobra.Command) (*clusterConfig, error) {
	var cfg = &clusterConfig{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	}

	var flags = cmd.Flags()
	if flags.Changed("members") || len(cfg.Members) == 0 {
		cfg.Members = memberList
	}
	if flags.Changed("num-owners") || cfg.NumOwners == 0 {
		cfg.NumOwners = numOwners
	}
	if flags.Changed("hash") || cfg.Hash == "" {
		cfg.Hash = hashName
	}
	if flags.Changed("sender-policy") || cfg.SenderPolicy == "" {
		cfg.SenderPolicy = senderPolicy
	}
	if flags.Changed("self") || cfg.Self == "" {
		cfg.Self = selfID
	}

	return cfg, nil
}

// ringOptions translates the config into library options.
func (c *clusterConfig) ringOptions() ([]cachering.Option, error) {
	var opts []cachering.Option

	switch strings.ToLower(c.Hash) {
	case "md5":
		opts = append(opts, cachering.WithHashFunc(cachering.MD5Hash))
	case "xxhash":
		opts = append(opts, cachering.WithHashFunc(cachering.XXHash))
	default:
		return nil, fmt.Errorf("unknown hash function %q: use md5 or xxhash", c.Hash)
	}

	policy, err := cachering.ParseSenderPolicy(c.SenderPolicy)
	if err != nil {
		return nil, err
	}
	return append(opts, cachering.WithSenderPolicy(policy)), nil
}

func (c *clusterConfig) members() []cachering.Member {
	var result = make([]cachering.Member, 0, len(c.Members))
	for _, m := range c.Members {
		if m = strings.TrimSpace(m); m != "" {
			result = append(result, cachering.Member(m))
		}
	}
	return result
}

// buildRing builds the ring of the configured members.
func (c *clusterConfig) buildRing() (*cachering.Ring, []cachering.Option, error) {
	opts, err := c.ringOptions()
	if err != nil {
		return nil, nil, err
	}
	ring, err := cachering.Build(c.members(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build ring (set --members or members in --config): %w", err)
	}
	return ring, opts, nil
}
