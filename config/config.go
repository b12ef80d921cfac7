package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// DataDir is the root directory under which job directories, and the
// pebble-backed credential/event-log/mirror-queue stores, are kept.
// Priority: RENDERFARM_DATA_DIR environment variable > "./data" default.
func DataDir() string {
	if dir := os.Getenv("RENDERFARM_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// JobsDir returns the root of the filesystem job store.
func JobsDir() string {
	return filepath.Join(DataDir(), "jobs")
}

// CredentialsDBPath returns the path to the mirror-credential pebble store.
func CredentialsDBPath() string {
	return filepath.Join(DataDir(), "credentials.db")
}

// EventLogDBPath returns the path to the job event ledger pebble store.
func EventLogDBPath() string {
	return filepath.Join(DataDir(), "events.db")
}

// MirrorQueueDBPath returns the path to the durable mirror queue.
func MirrorQueueDBPath() string {
	return filepath.Join(DataDir(), "mirrorqueue.db")
}

// Bind returns the TCP address the protocol server listens on.
// Priority: RENDERFARM_BIND environment variable > ":9876" default.
func Bind() string {
	if addr := os.Getenv("RENDERFARM_BIND"); addr != "" {
		return addr
	}
	return ":9876"
}

// AdminBind returns the address the side-channel admin HTTP server
// listens on. Priority: RENDERFARM_ADMIN_BIND > ":9877" default.
func AdminBind() string {
	if addr := os.Getenv("RENDERFARM_ADMIN_BIND"); addr != "" {
		return addr
	}
	return ":9877"
}

// LogFile returns the path renderfarmd appends log output to, or "" for
// console-only logging. Priority: RENDERFARM_LOG_FILE > "" default.
func LogFile() string {
	return os.Getenv("RENDERFARM_LOG_FILE")
}

// Scheduler tunables. Each has an env-var override so an operator can
// retune the controller without a rebuild.
var (
	TargetBatchTime        = durationEnv("RENDERFARM_TARGET_BATCH_TIME", 40*time.Second)
	MaxBatchSize           = floatEnv("RENDERFARM_MAX_BATCH_SIZE", 100)
	StatusTimeout          = durationEnv("RENDERFARM_STATUS_TIMEOUT", 20*time.Second)
	BatchUpdateMinInterval = durationEnv("RENDERFARM_BATCH_UPDATE_MIN_INTERVAL", 10*time.Second)
)

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}

func floatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// MirrorWorkers returns the maximum number of concurrent mirror-queue
// drain workers. Configurable via RENDERFARM_MIRROR_WORKERS, defaulting
// to runtime.NumCPU()-1 (minimum 1), clamped to [1,10].
func MirrorWorkers() int {
	const maxLimit = 10
	const minWorkers = 1

	def := runtime.NumCPU() - 1
	if def < minWorkers {
		def = minWorkers
	}
	if def > maxLimit {
		def = maxLimit
	}

	if env := os.Getenv("RENDERFARM_MIRROR_WORKERS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			if n < minWorkers {
				return minWorkers
			}
			if n > maxLimit {
				return maxLimit
			}
			return n
		}
	}
	return def
}
