// Package storage persists conversations, bookmarks, and daemon lifecycle
// files under $XDG_DATA_HOME/neuromance (spec.md §4.4). Every multi-step
// write (conversation, current pointer, bookmarks) goes through a
// write-to-tmp-then-rename so a crash mid-write never leaves a half-written
// file behind.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/neuromance/neuromance-go/internal/domain"
)

const dirMode = 0o700

// Store manages every on-disk file this module owns under one data
// directory (spec.md §4.4's file layout table).
type Store struct {
	dataDir          string
	conversationsDir string
	currentFile      string
	bookmarksFile    string
	socketPath       string
	pidPath          string
	lockPath         string

	bookmarksMu sync.Mutex
}

// New resolves the data directory ($XDG_DATA_HOME/neuromance, falling back
// to ~/.local/share/neuromance) and creates it plus the conversations
// subdirectory with owner-only permissions.
func New() (*Store, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return NewAt(dataDir)
}

// NewAt builds a Store rooted at dataDir, creating directories as needed.
// Exposed separately from New so tests can point at a temp directory
// without touching $XDG_DATA_HOME.
func NewAt(dataDir string) (*Store, error) {
	conversationsDir := filepath.Join(dataDir, "conversations")
	if err := os.MkdirAll(conversationsDir, dirMode); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, fmt.Errorf("create conversations dir: %w", err))
	}
	if err := os.Chmod(dataDir, dirMode); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, fmt.Errorf("harden data dir permissions: %w", err))
	}

	return &Store{
		dataDir:          dataDir,
		conversationsDir: conversationsDir,
		currentFile:      filepath.Join(dataDir, "current"),
		bookmarksFile:    filepath.Join(dataDir, "bookmarks.json"),
		socketPath:       filepath.Join(dataDir, "neuromance.sock"),
		pidPath:          filepath.Join(dataDir, "neuromance.pid"),
		lockPath:         filepath.Join(dataDir, "neuromance.lock"),
	}, nil
}

// dataDir resolves $XDG_DATA_HOME/neuromance, falling back to
// ~/.local/share/neuromance. No XDG library is pulled in for this single
// lookup (see DESIGN.md: the pack carries none); this is the entire
// fallback the XDG base-directory spec requires for this one variable.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "neuromance"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "neuromance"), nil
}

func (s *Store) SocketPath() string { return s.socketPath }
func (s *Store) PIDPath() string    { return s.pidPath }
func (s *Store) LockPath() string   { return s.lockPath }

// DataDir returns the root directory this Store persists under, for callers
// (internal/client's auto-spawn path) that need to place sibling files, such
// as the daemon's stderr log, next to the files Store itself owns.
func (s *Store) DataDir() string { return s.dataDir }

// LogPath returns where internal/client redirects an auto-spawned daemon's
// stderr (spec.md §4.7).
func (s *Store) LogPath() string { return filepath.Join(s.dataDir, "daemon.log") }

func (s *Store) conversationPath(id string) string {
	return filepath.Join(s.conversationsDir, id+".json")
}

// writeAtomic writes data to path via a .tmp sibling then renames it into
// place, so a reader never observes a partially-written file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WritePID records the daemon's process id.
func (s *Store) WritePID(pid int) error {
	if err := os.WriteFile(s.pidPath, []byte(fmt.Sprintf("%d", pid)), 0o600); err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// ReadPID returns the recorded PID, or ok=false if the file is absent or
// unparseable.
func (s *Store) ReadPID() (pid int, ok bool) {
	data, err := os.ReadFile(s.pidPath)
	if err != nil {
		return 0, false
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		return 0, false
	}
	return pid, true
}

// RemovePID deletes the PID file; a missing file is not an error.
func (s *Store) RemovePID() error {
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// SaveConversation serializes conv as pretty JSON and atomically replaces
// its file.
func (s *Store) SaveConversation(conv *domain.Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}
	if err := writeAtomic(s.conversationPath(conv.ID), data); err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	slog.Debug("saved conversation", "conversation_id", conv.ID, "messages", len(conv.Messages))
	return nil
}

// LoadConversation reads and deserializes the conversation named by id.
func (s *Store) LoadConversation(id string) (*domain.Conversation, error) {
	path := s.conversationPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewDomainError(domain.ErrCodeConversationNotFound, id)
		}
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeCorruptJSON, err)
	}
	return &conv, nil
}

// ListConversations returns every conversation id with a file on disk, in
// no particular order.
func (s *Store) ListConversations() ([]string, error) {
	entries, err := os.ReadDir(s.conversationsDir)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		if _, err := uuid.Parse(stem); err == nil {
			ids = append(ids, stem)
		}
	}
	return ids, nil
}

// DeleteConversation removes a conversation's file from disk.
func (s *Store) DeleteConversation(id string) error {
	path := s.conversationPath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return domain.NewDomainError(domain.ErrCodeConversationNotFound, id)
	}
	if err := os.Remove(path); err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// GetActiveConversation returns the id recorded in the current pointer
// file, or ok=false if none is set.
func (s *Store) GetActiveConversation() (id string, ok bool, err error) {
	data, readErr := os.ReadFile(s.currentFile)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", false, nil
		}
		return "", false, domain.WrapDomainError(domain.ErrCodeStorageIO, readErr)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", false, nil
	}
	return trimmed, true, nil
}

// SetActiveConversation atomically records id as the active conversation.
func (s *Store) SetActiveConversation(id string) error {
	if err := writeAtomic(s.currentFile, []byte(id)); err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// ClearActiveConversation removes the current pointer file; a no-op if
// none is set.
func (s *Store) ClearActiveConversation() error {
	if err := os.Remove(s.currentFile); err != nil && !os.IsNotExist(err) {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// LoadBookmarks returns the name->conversation-id map, empty if the
// bookmarks file doesn't exist yet.
func (s *Store) LoadBookmarks() (map[string]string, error) {
	data, err := os.ReadFile(s.bookmarksFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}

	var bookmarks map[string]string
	if err := json.Unmarshal(data, &bookmarks); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeCorruptJSON, err)
	}
	return bookmarks, nil
}

func (s *Store) saveBookmarks(bookmarks map[string]string) error {
	data, err := json.MarshalIndent(bookmarks, "", "  ")
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}
	if err := writeAtomic(s.bookmarksFile, data); err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, err)
	}
	return nil
}

// SetBookmark aliases name to conversationID, failing if name is already
// in use. The read-modify-write cycle is serialized by bookmarksMu so
// concurrent callers never race each other's save.
func (s *Store) SetBookmark(name, conversationID string) error {
	s.bookmarksMu.Lock()
	defer s.bookmarksMu.Unlock()

	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		return err
	}
	if _, exists := bookmarks[name]; exists {
		return domain.NewDomainError(domain.ErrCodeBookmarkExists, name)
	}
	bookmarks[name] = conversationID
	return s.saveBookmarks(bookmarks)
}

// RemoveBookmark deletes name, failing if it doesn't exist.
func (s *Store) RemoveBookmark(name string) error {
	s.bookmarksMu.Lock()
	defer s.bookmarksMu.Unlock()

	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		return err
	}
	if _, exists := bookmarks[name]; !exists {
		return domain.NewDomainError(domain.ErrCodeBookmarkNotFound, name)
	}
	delete(bookmarks, name)
	return s.saveBookmarks(bookmarks)
}

// GetConversationBookmarks returns every bookmark name pointing at id.
func (s *Store) GetConversationBookmarks(id string) ([]string, error) {
	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		return nil, err
	}
	var names []string
	for name, convID := range bookmarks {
		if convID == id {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveBookmarksForConversation deletes every bookmark pointing at id and
// returns the names removed.
func (s *Store) RemoveBookmarksForConversation(id string) ([]string, error) {
	s.bookmarksMu.Lock()
	defer s.bookmarksMu.Unlock()

	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		return nil, err
	}
	var removed []string
	for name, convID := range bookmarks {
		if convID == id {
			removed = append(removed, name)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	for _, name := range removed {
		delete(bookmarks, name)
	}
	if err := s.saveBookmarks(bookmarks); err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

const shortHashMinLength = 7

// ResolveConversationID accepts a full uuid, a bookmark name, or a prefix
// of at least shortHashMinLength hex characters of a uuid (spec.md §4.4).
// Resolution order: bookmark -> full uuid -> short-hash prefix. A prefix
// matching more than one conversation fails with ErrCodeAmbiguousShortHash.
func (s *Store) ResolveConversationID(idOrName string) (string, error) {
	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		return "", err
	}
	if id, ok := bookmarks[idOrName]; ok {
		if _, err := uuid.Parse(id); err != nil {
			return "", domain.NewDomainError(domain.ErrCodeInvalidConversationID, idOrName)
		}
		return id, nil
	}

	if _, err := uuid.Parse(idOrName); err == nil {
		return idOrName, nil
	}

	if len(idOrName) >= shortHashMinLength {
		ids, err := s.ListConversations()
		if err != nil {
			return "", err
		}
		var matches []string
		for _, id := range ids {
			if strings.HasPrefix(id, idOrName) {
				matches = append(matches, id)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			return matches[0], nil
		default:
			return "", domain.NewDomainError(domain.ErrCodeAmbiguousShortHash, idOrName)
		}
	}

	return "", domain.NewDomainError(domain.ErrCodeConversationNotFound, idOrName)
}
