// Package config loads runtime configuration from defaults, an optional
// config file, CEDIS_*-prefixed environment variables, and CLI flags,
// merged with spf13/viper + spf13/pflag the way
// adred-codev-ws_poc/go-server-3/internal/config/config.go layers its own
// ODIN_*-prefixed settings. The field set and defaults mirror
// original_source/src/config.rs's Config struct.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SaveRule is one (seconds, min-changes) pair from the `save` parameter.
type SaveRule struct {
	Seconds uint64
	Changes uint64
}

// Config is the full set of server parameters, also the backing store for
// CONFIG GET/SET (spec.md §6). Access from more than one goroutine (the
// command dispatcher and the background maintenance loop) is guarded by mu.
type Config struct {
	mu sync.RWMutex

	Bind        string
	Port        int
	Databases   int
	RequirePass string
	Timeout     uint64
	TCPKeepAlive uint64
	Hz           uint64
	LogLevel     string

	DBFilename  string
	Dir         string
	AppendOnly  bool
	AppendFsync string
	SaveRules   []SaveRule

	MaxMemory       uint64
	MaxMemoryPolicy string

	ListMaxListpackSize    int64
	HashMaxListpackEntries uint64
	HashMaxListpackValue   uint64
	SetMaxIntsetEntries    uint64
	SetMaxListpackEntries  uint64
	SetMaxListpackValue    uint64
	ListCompressDepth      int64
	ZSetMaxListpackEntries uint64
	ZSetMaxListpackValue   uint64

	ActiveExpireEnabled bool

	ReplicaOfHost   string
	ReplicaOfPort   int
	ReplicaReadOnly bool
	ReplBacklogSize int

	MetricsListenAddr string
}

// Default returns a Config populated with original_source/src/config.rs's
// Config::default() values.
func Default() *Config {
	return &Config{
		Bind:         "127.0.0.1",
		Port:         6379,
		Databases:    16,
		Timeout:      0,
		TCPKeepAlive: 300,
		Hz:           10,
		LogLevel:     "notice",
		DBFilename:   "dump.rdb",
		Dir:          ".",
		AppendOnly:   false,
		AppendFsync:  "everysec",
		SaveRules: []SaveRule{
			{Seconds: 900, Changes: 1},
			{Seconds: 300, Changes: 10},
			{Seconds: 60, Changes: 10000},
		},
		MaxMemory:              0,
		MaxMemoryPolicy:        "noeviction",
		ListMaxListpackSize:    -2,
		HashMaxListpackEntries: 128,
		HashMaxListpackValue:   64,
		SetMaxIntsetEntries:    512,
		SetMaxListpackEntries:  128,
		SetMaxListpackValue:    64,
		ListCompressDepth:      0,
		ZSetMaxListpackEntries: 128,
		ZSetMaxListpackValue:   64,
		ActiveExpireEnabled:    true,
		ReplicaReadOnly:        true,
		ReplBacklogSize:        1 << 20,
		MetricsListenAddr:      ":9121",
	}
}

// Load builds a Config from defaults overridden by the given CLI flag set.
// The optional config file and CEDIS_* environment variables are consulted
// only for maxmemory and maxmemory_policy, which have no flags.
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("cedis")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CEDIS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = v.ReadInConfig()

	flags.StringVar(&cfg.Bind, "bind", cfg.Bind, "address to bind")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "TCP port")
	flags.StringVar(&cfg.RequirePass, "requirepass", cfg.RequirePass, "shared-secret password")
	flags.StringVar(&cfg.DBFilename, "dbfilename", cfg.DBFilename, "snapshot filename")
	flags.StringVar(&cfg.Dir, "dir", cfg.Dir, "working directory for persistence files")
	appendOnly := flags.String("appendonly", "no", "yes|no")
	flags.IntVar(&cfg.Databases, "databases", cfg.Databases, "number of logical databases")
	flags.Uint64Var(&cfg.Timeout, "timeout", cfg.Timeout, "client idle timeout seconds (0 disables)")
	flags.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "debug|verbose|notice|warning")
	flags.Uint64Var(&cfg.Hz, "hz", cfg.Hz, "background task frequency")
	replicaof := flags.String("replicaof", "", "host port, or 'no one'")
	flags.IntVar(&cfg.ReplBacklogSize, "repl-backlog-size", cfg.ReplBacklogSize, "replication backlog bytes")
	flags.StringVar(&cfg.MetricsListenAddr, "metrics-addr", cfg.MetricsListenAddr, "prometheus listener address")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.AppendOnly = strings.EqualFold(*appendOnly, "yes")

	if *replicaof != "" && !strings.EqualFold(*replicaof, "no one") {
		parts := strings.Fields(*replicaof)
		if len(parts) == 2 {
			cfg.ReplicaOfHost = parts[0]
			if p, err := strconv.Atoi(parts[1]); err == nil {
				cfg.ReplicaOfPort = p
			}
		}
	}

	if v.IsSet("maxmemory") {
		cfg.MaxMemory = v.GetUint64("maxmemory")
	}
	if v.IsSet("maxmemory_policy") {
		cfg.MaxMemoryPolicy = v.GetString("maxmemory_policy")
	}

	return cfg, nil
}

// Get implements CONFIG GET's per-parameter textual projection, mirroring
// original_source/src/config.rs's Config::get.
func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch strings.ToLower(key) {
	case "bind":
		return c.Bind, true
	case "port":
		return strconv.Itoa(c.Port), true
	case "databases":
		return strconv.Itoa(c.Databases), true
	case "requirepass":
		return c.RequirePass, true
	case "timeout":
		return strconv.FormatUint(c.Timeout, 10), true
	case "tcp-keepalive":
		return strconv.FormatUint(c.TCPKeepAlive, 10), true
	case "hz":
		return strconv.FormatUint(c.Hz, 10), true
	case "loglevel":
		return c.LogLevel, true
	case "dbfilename":
		return c.DBFilename, true
	case "dir":
		return c.Dir, true
	case "appendonly":
		if c.AppendOnly {
			return "yes", true
		}
		return "no", true
	case "appendfsync":
		return c.AppendFsync, true
	case "maxmemory":
		return strconv.FormatUint(c.MaxMemory, 10), true
	case "maxmemory-policy":
		return c.MaxMemoryPolicy, true
	case "list-max-ziplist-size", "list-max-listpack-size":
		return strconv.FormatInt(c.ListMaxListpackSize, 10), true
	case "hash-max-ziplist-entries", "hash-max-listpack-entries":
		return strconv.FormatUint(c.HashMaxListpackEntries, 10), true
	case "hash-max-ziplist-value", "hash-max-listpack-value":
		return strconv.FormatUint(c.HashMaxListpackValue, 10), true
	case "set-max-intset-entries":
		return strconv.FormatUint(c.SetMaxIntsetEntries, 10), true
	case "set-max-listpack-entries":
		return strconv.FormatUint(c.SetMaxListpackEntries, 10), true
	case "set-max-listpack-value":
		return strconv.FormatUint(c.SetMaxListpackValue, 10), true
	case "list-compress-depth":
		return strconv.FormatInt(c.ListCompressDepth, 10), true
	case "zset-max-ziplist-entries", "zset-max-listpack-entries":
		return strconv.FormatUint(c.ZSetMaxListpackEntries, 10), true
	case "zset-max-ziplist-value", "zset-max-listpack-value":
		return strconv.FormatUint(c.ZSetMaxListpackValue, 10), true
	case "save":
		parts := make([]string, 0, len(c.SaveRules)*2)
		for _, r := range c.SaveRules {
			parts = append(parts, strconv.FormatUint(r.Seconds, 10), strconv.FormatUint(r.Changes, 10))
		}
		return strings.Join(parts, " "), true
	case "repl-backlog-size":
		return strconv.Itoa(c.ReplBacklogSize), true
	case "replica-read-only", "slave-read-only":
		if c.ReplicaReadOnly {
			return "yes", true
		}
		return "no", true
	default:
		return "", false
	}
}

// Set implements CONFIG SET. Unknown parameters are accepted silently for
// compatibility, matching original_source/src/config.rs's Config::set.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(key) {
	case "hz":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid hz value")
		}
		c.Hz = n
	case "timeout":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timeout value")
		}
		c.Timeout = n
	case "loglevel":
		c.LogLevel = value
	case "maxmemory":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid maxmemory value")
		}
		c.MaxMemory = n
	case "maxmemory-policy":
		c.MaxMemoryPolicy = value
	case "appendonly":
		c.AppendOnly = strings.EqualFold(value, "yes")
	case "appendfsync":
		c.AppendFsync = value
	case "requirepass":
		c.RequirePass = value
	case "list-max-ziplist-size", "list-max-listpack-size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value")
		}
		c.ListMaxListpackSize = n
	default:
		// Accept unknown parameters silently for compatibility.
	}
	return nil
}

// AllParameterNames lists every CONFIG parameter this server recognizes,
// used by CONFIG GET's glob-filtered multi-parameter form.
func AllParameterNames() []string {
	return []string{
		"bind", "port", "databases", "requirepass", "timeout", "tcp-keepalive",
		"hz", "loglevel", "dbfilename", "dir", "appendonly", "appendfsync",
		"maxmemory", "maxmemory-policy", "list-max-listpack-size",
		"hash-max-listpack-entries", "hash-max-listpack-value",
		"set-max-intset-entries", "set-max-listpack-entries",
		"set-max-listpack-value", "list-compress-depth",
		"zset-max-listpack-entries", "zset-max-listpack-value", "save",
		"repl-backlog-size", "replica-read-only",
	}
}
