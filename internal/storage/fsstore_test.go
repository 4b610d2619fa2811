package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/neuromance/neuromance-go/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	return s
}

func newTestConversation(t *testing.T) *domain.Conversation {
	t.Helper()
	conv := domain.NewConversation("default")
	msg, err := domain.NewMessage(conv.ID, domain.RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conv.Append(*msg); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return conv
}

func TestSaveLoadConversation_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)

	if err := s.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	loaded, err := s.LoadConversation(conv.ID)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if loaded.ID != conv.ID || len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadConversation(uuid.NewString())
	if domain.CodeOf(err) != domain.ErrCodeConversationNotFound {
		t.Fatalf("expected ErrCodeConversationNotFound, got %v", err)
	}
}

func TestListConversations_ReturnsSavedIDs(t *testing.T) {
	s := newTestStore(t)
	a := newTestConversation(t)
	b := newTestConversation(t)
	if err := s.SaveConversation(a); err != nil {
		t.Fatalf("SaveConversation a: %v", err)
	}
	if err := s.SaveConversation(b); err != nil {
		t.Fatalf("SaveConversation b: %v", err)
	}

	ids, err := s.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}

func TestDeleteConversation_RemovesFileAndFailsOnMissing(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)
	if err := s.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	if err := s.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := s.LoadConversation(conv.ID); domain.CodeOf(err) != domain.ErrCodeConversationNotFound {
		t.Fatalf("expected deleted conversation to be gone, got %v", err)
	}
	if err := s.DeleteConversation(conv.ID); domain.CodeOf(err) != domain.ErrCodeConversationNotFound {
		t.Fatalf("expected ErrCodeConversationNotFound on double delete, got %v", err)
	}
}

func TestActiveConversation_SetGetClear(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetActiveConversation(); err != nil || ok {
		t.Fatalf("expected no active conversation initially, ok=%v err=%v", ok, err)
	}

	conv := newTestConversation(t)
	if err := s.SetActiveConversation(conv.ID); err != nil {
		t.Fatalf("SetActiveConversation: %v", err)
	}
	id, ok, err := s.GetActiveConversation()
	if err != nil || !ok || id != conv.ID {
		t.Fatalf("expected active conversation %q, got id=%q ok=%v err=%v", conv.ID, id, ok, err)
	}

	if err := s.ClearActiveConversation(); err != nil {
		t.Fatalf("ClearActiveConversation: %v", err)
	}
	if _, ok, err := s.GetActiveConversation(); err != nil || ok {
		t.Fatalf("expected cleared conversation, ok=%v err=%v", ok, err)
	}
}

func TestBookmarks_SetDuplicateRemove(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)

	if err := s.SetBookmark("work", conv.ID); err != nil {
		t.Fatalf("SetBookmark: %v", err)
	}
	if err := s.SetBookmark("work", conv.ID); domain.CodeOf(err) != domain.ErrCodeBookmarkExists {
		t.Fatalf("expected ErrCodeBookmarkExists, got %v", err)
	}

	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		t.Fatalf("LoadBookmarks: %v", err)
	}
	if bookmarks["work"] != conv.ID {
		t.Fatalf("unexpected bookmarks: %+v", bookmarks)
	}

	if err := s.RemoveBookmark("work"); err != nil {
		t.Fatalf("RemoveBookmark: %v", err)
	}
	if err := s.RemoveBookmark("work"); domain.CodeOf(err) != domain.ErrCodeBookmarkNotFound {
		t.Fatalf("expected ErrCodeBookmarkNotFound, got %v", err)
	}
}

func TestGetConversationBookmarks_ReturnsMatchingNames(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)
	other := newTestConversation(t)

	if err := s.SetBookmark("alpha", conv.ID); err != nil {
		t.Fatalf("SetBookmark alpha: %v", err)
	}
	if err := s.SetBookmark("beta", conv.ID); err != nil {
		t.Fatalf("SetBookmark beta: %v", err)
	}
	if err := s.SetBookmark("gamma", other.ID); err != nil {
		t.Fatalf("SetBookmark gamma: %v", err)
	}

	names, err := s.GetConversationBookmarks(conv.ID)
	if err != nil {
		t.Fatalf("GetConversationBookmarks: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("unexpected bookmarks: %v", names)
	}
}

func TestRemoveBookmarksForConversation_RemovesAllMatching(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)
	other := newTestConversation(t)

	if err := s.SetBookmark("alpha", conv.ID); err != nil {
		t.Fatalf("SetBookmark alpha: %v", err)
	}
	if err := s.SetBookmark("gamma", other.ID); err != nil {
		t.Fatalf("SetBookmark gamma: %v", err)
	}

	removed, err := s.RemoveBookmarksForConversation(conv.ID)
	if err != nil {
		t.Fatalf("RemoveBookmarksForConversation: %v", err)
	}
	if len(removed) != 1 || removed[0] != "alpha" {
		t.Fatalf("unexpected removed: %v", removed)
	}

	bookmarks, err := s.LoadBookmarks()
	if err != nil {
		t.Fatalf("LoadBookmarks: %v", err)
	}
	if _, exists := bookmarks["alpha"]; exists {
		t.Fatalf("expected alpha removed: %+v", bookmarks)
	}
	if bookmarks["gamma"] != other.ID {
		t.Fatalf("expected gamma untouched: %+v", bookmarks)
	}
}

func TestResolveConversationID_BookmarkTakesPriority(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)
	if err := s.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if err := s.SetBookmark("work", conv.ID); err != nil {
		t.Fatalf("SetBookmark: %v", err)
	}

	id, err := s.ResolveConversationID("work")
	if err != nil {
		t.Fatalf("ResolveConversationID: %v", err)
	}
	if id != conv.ID {
		t.Fatalf("got %q, want %q", id, conv.ID)
	}
}

func TestResolveConversationID_FullUUID(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)

	id, err := s.ResolveConversationID(conv.ID)
	if err != nil {
		t.Fatalf("ResolveConversationID: %v", err)
	}
	if id != conv.ID {
		t.Fatalf("got %q, want %q", id, conv.ID)
	}
}

func TestResolveConversationID_ShortHashPrefix(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t)
	if err := s.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	id, err := s.ResolveConversationID(conv.ID[:shortHashMinLength])
	if err != nil {
		t.Fatalf("ResolveConversationID: %v", err)
	}
	if id != conv.ID {
		t.Fatalf("got %q, want %q", id, conv.ID)
	}
}

func TestResolveConversationID_AmbiguousShortHashFails(t *testing.T) {
	s := newTestStore(t)

	prefix := "aaaaaaa"
	a := &domain.Conversation{ID: prefix + "1-0000-4000-8000-000000000001", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	b := &domain.Conversation{ID: prefix + "2-0000-4000-8000-000000000002", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.SaveConversation(a); err != nil {
		t.Fatalf("SaveConversation a: %v", err)
	}
	if err := s.SaveConversation(b); err != nil {
		t.Fatalf("SaveConversation b: %v", err)
	}

	_, err := s.ResolveConversationID(prefix)
	if domain.CodeOf(err) != domain.ErrCodeAmbiguousShortHash {
		t.Fatalf("expected ErrCodeAmbiguousShortHash, got %v", err)
	}
}

func TestResolveConversationID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ResolveConversationID("nonexistent-name")
	if domain.CodeOf(err) != domain.ErrCodeConversationNotFound {
		t.Fatalf("expected ErrCodeConversationNotFound, got %v", err)
	}
}

func TestWriteReadRemovePID(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.ReadPID(); ok {
		t.Fatalf("expected no pid initially")
	}
	if err := s.WritePID(1234); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, ok := s.ReadPID()
	if !ok || pid != 1234 {
		t.Fatalf("got pid=%d ok=%v, want 1234", pid, ok)
	}
	if err := s.RemovePID(); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, ok := s.ReadPID(); ok {
		t.Fatalf("expected no pid after removal")
	}
}
