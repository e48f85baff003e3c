// Package config loads the timestamper's tunable constants from the
// environment, mirroring the getenv helper pattern the teacher's
// cmd/coordinator and cmd/node main packages use (spec.md §6).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	NVT                  int
	NShards              int
	NThreads             int
	VTTimeout            time.Duration
	VTInitialTimeout     time.Duration
	ShardIDIncr          int
	StartMigrID          int
	MetricsAddr          string
}

// Default returns the configuration a single-process demo or test
// typically wants: a small deployment with a microsecond-scale
// heartbeat.
func Default() Config {
	return Config{
		NVT:              1,
		NShards:          1,
		NThreads:         4,
		VTTimeout:        500 * time.Microsecond,
		VTInitialTimeout: 5 * time.Second,
		ShardIDIncr:      1000,
		StartMigrID:      1,
		MetricsAddr:      ":9090",
	}
}

// FromEnv overlays environment variables onto Default(), following
// the same getenv/fallback shape as the teacher's main packages.
func FromEnv() Config {
	c := Default()
	c.NVT = getenvInt("VT_N_VT", c.NVT)
	c.NShards = getenvInt("VT_N_SHARDS", c.NShards)
	c.NThreads = getenvInt("VT_N_THREADS", c.NThreads)
	c.VTTimeout = getenvDuration("VT_TIMEOUT_NANO", c.VTTimeout)
	c.VTInitialTimeout = getenvDuration("VT_INITIAL_TIMEOUT_NANO", c.VTInitialTimeout)
	c.ShardIDIncr = getenvInt("VT_SHARD_ID_INCR", c.ShardIDIncr)
	c.StartMigrID = getenvInt("VT_START_MIGR_ID", c.StartMigrID)
	c.MetricsAddr = getenv("VT_METRICS_ADDR", c.MetricsAddr)
	return c
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	nanos, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(nanos)
}
