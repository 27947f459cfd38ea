// Package ordering computes sortable position keys for items inside a container
// and renumbers a container when adjacent keys can no longer be told apart.
// It performs no I/O; callers read a sequence, ask the engine for updates and
// persist them.
package ordering

import (
	"fmt"
	"math"
)

const (
	DefaultGap              = 1000.0
	DefaultMinPosition      = 1.0
	DefaultRebalanceEpsilon = 0.001
)

type Config struct {
	// Gap is the spacing used when appending and when rebalancing.
	Gap float64
	// MinPosition is the lowest position a head insert may produce.
	MinPosition float64
	// RebalanceEpsilon is the smallest tolerated distance between neighbours.
	RebalanceEpsilon float64
}

func DefaultConfig() Config {
	return Config{
		Gap:              DefaultGap,
		MinPosition:      DefaultMinPosition,
		RebalanceEpsilon: DefaultRebalanceEpsilon,
	}
}

func (c Config) Validate() error {
	values := []struct {
		name  string
		value float64
	}{
		{"gap", c.Gap},
		{"min position", c.MinPosition},
		{"rebalance epsilon", c.RebalanceEpsilon},
	}
	for _, v := range values {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidConfig, v.name, v.value)
		}
	}
	if c.Gap < c.MinPosition {
		return fmt.Errorf("%w: gap %v must be at least min position %v", ErrInvalidConfig, c.Gap, c.MinPosition)
	}
	if c.Gap <= c.RebalanceEpsilon {
		return fmt.Errorf("%w: gap %v must exceed rebalance epsilon %v", ErrInvalidConfig, c.Gap, c.RebalanceEpsilon)
	}
	return nil
}

// Engine is safe for concurrent use; it holds only its configuration.
type Engine struct {
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// MustNew is New for configurations known to be valid, such as DefaultConfig.
func MustNew(cfg Config) *Engine {
	engine, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return engine
}

func (e *Engine) Config() Config {
	return e.cfg
}
