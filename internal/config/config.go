package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tessera-db/tessera/internal/join"
)

const (
	defaultBudgetMs    = 100
	defaultMaxBuffered = 10000
)

// Config carries the execution core's tunables. The page budget and the
// enabled join types are the only knobs relevant here; connection,
// authentication and planning configuration live with the host store.
type Config struct {
	// ScanBudget is the wall-clock allowance for one scan call.
	ScanBudget time.Duration
	// JoinTypes are the join types the host enables.
	JoinTypes []join.Type
	// MaxJoinBuffer caps the compositor's composed-row buffer.
	MaxJoinBuffer int
	Debug         bool
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		ScanBudget:    defaultBudgetMs * time.Millisecond,
		JoinTypes:     []join.Type{join.Inner, join.Left, join.Semi, join.Anti},
		MaxJoinBuffer: defaultMaxBuffered,
	}
}

// Load reads a tessera.conf style file: one key = value per line, # starts
// a comment, unknown keys are rejected.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := Default()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "scan_budget_ms":
			ms, err := strconv.Atoi(value)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("invalid scan_budget_ms: %q", value)
			}
			config.ScanBudget = time.Duration(ms) * time.Millisecond
		case "join_types":
			types, err := parseJoinTypes(value)
			if err != nil {
				return nil, err
			}
			config.JoinTypes = types
		case "max_join_buffer":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid max_join_buffer: %q", value)
			}
			config.MaxJoinBuffer = n
		case "debug":
			config.Debug = value == "true"
		default:
			return nil, fmt.Errorf("unknown config key: %q", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return config, nil
}

// JoinEnabled reports whether a join type is switched on.
func (c *Config) JoinEnabled(t join.Type) bool {
	for _, enabled := range c.JoinTypes {
		if enabled == t {
			return true
		}
	}
	return false
}

func parseJoinTypes(value string) ([]join.Type, error) {
	var types []join.Type
	for _, name := range strings.Split(value, ",") {
		switch strings.TrimSpace(name) {
		case "inner":
			types = append(types, join.Inner)
		case "left":
			types = append(types, join.Left)
		case "semi":
			types = append(types, join.Semi)
		case "anti":
			types = append(types, join.Anti)
		default:
			return nil, fmt.Errorf("unknown join type: %q", name)
		}
	}
	return types, nil
}
