// Package session persists SessionData to per-project JSON files: one
// file per session under <projectDir>/sessions, debounced writes while a
// session is active, synchronous flush on finalize. Grounded on this
// codebase's repository layer (task/repository/memory.go's in-memory
// store guarded by a mutex, adapted to flush to disk instead of holding
// the authoritative copy purely in memory) and config.go's
// tolerant-of-corruption loading style: a bad file is skipped with a
// warning, never a fatal error.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/model"
	"github.com/fedi-cli/fedi/internal/relayerr"
)

// DefaultSaveDebounce is how long scheduleSave coalesces mutations before
// writing to disk.
const DefaultSaveDebounce = 2 * time.Second

// Store is bound to one project directory and holds the authoritative,
// in-memory copy of the active session while it runs, persisting it to
// <projectDir>/sessions/session-<id>.json.
type Store struct {
	projectDir   string
	saveDebounce time.Duration
	log          *logger.Logger

	mu        sync.Mutex
	data      *model.SessionData
	saveTimer *time.Timer
}

// New returns a Store bound to projectDir. saveDebounce of 0 uses
// DefaultSaveDebounce.
func New(projectDir string, saveDebounce time.Duration, log *logger.Logger) *Store {
	if saveDebounce == 0 {
		saveDebounce = DefaultSaveDebounce
	}
	return &Store{projectDir: projectDir, saveDebounce: saveDebounce, log: log}
}

func (s *Store) sessionsDir() string {
	return filepath.Join(s.projectDir, "sessions")
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.sessionsDir(), "session-"+id+".json")
}

// StartSession creates a new in-memory SessionData for task, persists it
// immediately (synchronously, so a session is never lost if the process
// dies before the first debounce fires), and returns its id.
func (s *Store) StartSession(task string) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.data = &model.SessionData{
		ID:            id,
		Version:       model.SessionSchemaVersion,
		Task:          task,
		ProjectDir:    s.projectDir,
		StartedAt:     time.Now(),
		Messages:      nil,
		AgentSessions: make(map[model.AgentId]string),
	}
	s.mu.Unlock()

	if err := s.writeNow(); err != nil {
		return "", err
	}
	return id, nil
}

// AppendMessage records msg against the active session and schedules a
// debounced save.
func (s *Store) AppendMessage(msg model.Message) {
	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return
	}
	s.data.Messages = append(s.data.Messages, msg)
	s.mu.Unlock()
	s.scheduleSave()
}

// SetAgentSession records the external CLI session id captured for agent,
// used to pass --resume on the driver's next invocation, and schedules a
// debounced save.
func (s *Store) SetAgentSession(agent model.AgentId, externalID string) {
	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return
	}
	s.data.AgentSessions[agent] = externalID
	s.mu.Unlock()
	s.scheduleSave()
}

// scheduleSave coalesces repeated mutations into one write, the store's
// saveDebounce after the last call.
func (s *Store) scheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.saveDebounce, func() {
		if err := s.writeNow(); err != nil && s.log != nil {
			s.log.Warn("session save failed", zap.Error(err))
		}
	})
}

// Finalize stamps finishedAt and flushes to disk synchronously,
// cancelling any pending debounced save.
func (s *Store) Finalize() error {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	if s.data == nil {
		s.mu.Unlock()
		return nil
	}
	now := time.Now()
	s.data.FinishedAt = &now
	s.mu.Unlock()
	return s.writeNow()
}

// Snapshot returns a deep-enough copy of the active session for callers
// that must not race with further mutation (e.g. a resume replay).
func (s *Store) Snapshot() *model.SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	cp := *s.data
	cp.Messages = append([]model.Message(nil), s.data.Messages...)
	cp.AgentSessions = make(map[model.AgentId]string, len(s.data.AgentSessions))
	for k, v := range s.data.AgentSessions {
		cp.AgentSessions[k] = v
	}
	return &cp
}

func (s *Store) writeNow() error {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return nil
	}

	if err := os.MkdirAll(s.sessionsDir(), 0o755); err != nil {
		return relayerr.SessionIO(data.ID, err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return relayerr.SessionIO(data.ID, err)
	}

	tmp := s.pathFor(data.ID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return relayerr.SessionIO(data.ID, err)
	}
	if err := os.Rename(tmp, s.pathFor(data.ID)); err != nil {
		return relayerr.SessionIO(data.ID, err)
	}
	return nil
}

// Load reads session <id> from disk. It returns (nil, nil) if the file is
// missing, has the wrong schema version, or fails to parse — corrupt or
// stale session files are never a fatal error, only a warning.
func (s *Store) Load(id string) (*model.SessionData, error) {
	raw, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, relayerr.SessionIO(id, err)
	}

	var data model.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		if s.log != nil {
			s.log.Warn("skipping corrupt session file", zap.Error(err))
		}
		return nil, nil
	}
	if data.Version != model.SessionSchemaVersion {
		if s.log != nil {
			s.log.Warn("skipping session with mismatched schema version")
		}
		return nil, nil
	}

	s.mu.Lock()
	s.data = &data
	s.mu.Unlock()

	return &data, nil
}

// List returns every recognized session under the project directory,
// reduced to its summary form and sorted by StartedAt descending.
// Entries that fail to parse, or whose schema version mismatches, are
// skipped rather than failing the whole listing.
func (s *Store) List() ([]model.SessionSummary, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, relayerr.SessionIO("", err)
	}

	var summaries []model.SessionSummary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.sessionsDir(), name))
		if err != nil {
			continue
		}
		var data model.SessionData
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}
		if data.Version != model.SessionSchemaVersion {
			continue
		}
		summaries = append(summaries, model.SessionSummary{
			ID:         data.ID,
			Task:       data.Task,
			StartedAt:  data.StartedAt,
			FinishedAt: data.FinishedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}
