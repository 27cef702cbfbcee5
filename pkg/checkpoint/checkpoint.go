package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"searchtweets/pkg/api"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/stream"
)

// CurrentVersion is written into every new checkpoint.
const CurrentVersion = 1

// Checkpoint is the resumable state of one search: where the last page left
// off and how much of the caps it used.
type Checkpoint struct {
	QueryHash      string    `json:"query_hash"`
	Endpoint       string    `json:"endpoint"`
	Query          string    `json:"query"`
	NextToken      string    `json:"next_token"`
	RequestsIssued int       `json:"requests_issued"`
	ItemsEmitted   int       `json:"items_emitted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// Remaining returns the caps left for a resumed run. exhausted is true when
// a cap was already used up, since a remaining cap of 0 would mean no cap.
func (cp *Checkpoint) Remaining(maxItems, maxRequests int) (items, requests int, exhausted bool) {
	if maxItems > 0 {
		items = maxItems - cp.ItemsEmitted
		if items <= 0 {
			return 0, 0, true
		}
	}
	if maxRequests > 0 {
		requests = maxRequests - cp.RequestsIssued
		if requests <= 0 {
			return 0, 0, true
		}
	}
	return items, requests, false
}

// Manager handles checkpoint operations for one query
type Manager struct {
	checkpointPath string
	queryHash      string
	endpoint       string
	logger         logger.Logger
}

// Option configures a Manager
type Option func(*managerOptions)

type managerOptions struct {
	dir    string
	logger logger.Logger
}

// WithDir stores checkpoints in dir instead of the platform data directory.
func WithDir(dir string) Option {
	return func(o *managerOptions) { o.dir = dir }
}

// WithLogger sets the manager logger
func WithLogger(l logger.Logger) Option {
	return func(o *managerOptions) { o.logger = l }
}

// QueryHash identifies a search by its endpoint and base payload. Next-page
// tokens are ignored so every page of a run hashes the same.
func QueryHash(endpoint string, params api.Params) string {
	base := params.Clone()
	delete(base, "next_token")
	delete(base, "next")

	sum := sha256.Sum256([]byte(endpoint + "\n" + base.String()))
	return hex.EncodeToString(sum[:])
}

// NewManager creates a checkpoint manager for the search described by
// endpoint and params.
func NewManager(endpoint string, params api.Params, opts ...Option) (*Manager, error) {
	o := &managerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	checkpointsDir := o.dir
	if checkpointsDir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		checkpointsDir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	hash := QueryHash(endpoint, params)
	return &Manager{
		checkpointPath: filepath.Join(checkpointsDir, hash[:16]+".checkpoint.json"),
		queryHash:      hash,
		endpoint:       endpoint,
		logger:         logger.OrGlobal(o.logger).WithField("component", "checkpoint"),
	}, nil
}

// Path is where the checkpoint file lives.
func (m *Manager) Path() string { return m.checkpointPath }

// Create starts a fresh checkpoint and saves it.
func (m *Manager) Create(query string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		QueryHash: m.queryHash,
		Endpoint:  m.endpoint,
		Query:     query,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   CurrentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"query": query,
		"path":  m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.QueryHash != m.queryHash {
		return nil, fmt.Errorf("checkpoint %s belongs to a different query", m.checkpointPath)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"items_emitted":   cp.ItemsEmitted,
		"requests_issued": cp.RequestsIssued,
		"next_token":      cp.NextToken,
		"updated_at":      cp.UpdatedAt,
	})
	return &cp, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"items_emitted": cp.ItemsEmitted,
		"next_token":    cp.NextToken,
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// UpdateProgress records the token for the next page and the running totals.
func (m *Manager) UpdateProgress(cp *Checkpoint, nextToken string, requests, items int) error {
	cp.NextToken = nextToken
	cp.RequestsIssued = requests
	cp.ItemsEmitted = items
	return m.Save(cp)
}

// PageHook returns a stream page hook that keeps cp current after every
// page. Totals continue from whatever cp held when the hook was made. Once
// a page arrives without a next token the search is complete and the
// checkpoint is removed.
func (m *Manager) PageHook(cp *Checkpoint) func(stream.PageInfo) {
	baseRequests, baseItems := cp.RequestsIssued, cp.ItemsEmitted
	return func(p stream.PageInfo) {
		if p.NextToken == "" {
			if err := m.Delete(); err != nil {
				m.logger.WithError(err).Warn("failed to remove finished checkpoint")
			}
			return
		}
		err := m.UpdateProgress(cp, p.NextToken, baseRequests+p.RequestsIssued, baseItems+p.TotalEmitted)
		if err != nil {
			m.logger.WithError(err).Warn("failed to save checkpoint")
		}
	}
}

// GetCheckpointInfo returns a summary of the checkpoint
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"query":           cp.Query,
		"endpoint":        cp.Endpoint,
		"items_emitted":   cp.ItemsEmitted,
		"requests_issued": cp.RequestsIssued,
		"next_token":      cp.NextToken,
		"created_at":      cp.CreatedAt,
		"updated_at":      cp.UpdatedAt,
		"age":             time.Since(cp.UpdatedAt),
	}, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "searchtweets")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "searchtweets")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "searchtweets")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "searchtweets")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
