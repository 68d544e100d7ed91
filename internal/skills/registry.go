package skills

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dohr-michael/paula/internal/config"
)

const defaultSkillTimeout = 60 * time.Second

// Registry manages loaded skill definitions and invokes them.
type Registry struct {
	skills map[string]*Skill
	client *http.Client
	logger *slog.Logger
}

// NewRegistry creates a registry pre-populated from config endpoints and
// manifest directories. Bad manifests are skipped with a warning.
func NewRegistry(cfg config.SkillsConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		skills: make(map[string]*Skill),
		client: &http.Client{},
		logger: logger.With("component", "skills"),
	}

	for _, ep := range cfg.Endpoints {
		if err := r.Register(&Skill{Name: ep.Name, Endpoint: ep.Endpoint}); err != nil {
			r.logger.Warn("failed to register skill", "name", ep.Name, "error", err)
		}
	}
	for _, dir := range cfg.Dirs {
		if err := r.LoadDir(dir); err != nil {
			r.logger.Warn("failed to load skills dir", "dir", dir, "error", err)
		}
	}
	return r
}

// LoadDir scans a directory for *.yaml skill manifests and loads them.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("skills directory not found, skipping", "dir", dir)
			return nil
		}
		return fmt.Errorf("read skills dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		skill, err := LoadSkill(path)
		if err != nil {
			r.logger.Warn("failed to load skill", "path", path, "error", err)
			continue
		}
		if err := r.Register(skill); err != nil {
			r.logger.Warn("failed to register skill", "name", skill.Name, "error", err)
		}
	}
	return nil
}

// Register adds a skill to the registry.
func (r *Registry) Register(skill *Skill) error {
	if _, exists := r.skills[skill.Name]; exists {
		return fmt.Errorf("skill %q already registered", skill.Name)
	}
	r.skills[skill.Name] = skill
	return nil
}

// Get returns the skill with the given name, or nil.
func (r *Registry) Get(name string) *Skill {
	return r.skills[name]
}

// Names returns all registered skill names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke POSTs the JSON payload to a named skill and returns the response
// body. Non-2xx answers come back as errors carrying the body.
func (r *Registry) Invoke(ctx context.Context, name string, payload []byte) (string, error) {
	skill := r.Get(name)
	if skill == nil {
		return "", fmt.Errorf("unknown skill %q", name)
	}

	timeout := skill.Timeout
	if timeout <= 0 {
		timeout = defaultSkillTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(payload) == 0 {
		payload = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, skill.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("skill %q: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skill %q: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("skill %q: read response: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("skill %q: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
