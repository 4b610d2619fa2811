package domain

import (
	"encoding/json"
	"testing"
)

func TestConversation_AppendRejectsForeignMessage(t *testing.T) {
	conv := NewConversation("test")
	foreign, err := NewMessage("other-conversation", RoleUser, "hi")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conv.Append(*foreign); err == nil {
		t.Fatal("expected error appending a message with a foreign conversation_id")
	}

	own, err := NewMessage(conv.ID, RoleUser, "hi")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	before := conv.UpdatedAt
	if err := conv.Append(*own); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.Messages))
	}
	if !conv.UpdatedAt.After(before) && conv.UpdatedAt != before {
		t.Fatalf("UpdatedAt should advance on append")
	}
}

func TestConversation_RoundTripSerialization(t *testing.T) {
	conv := NewConversation("round trip")
	msg, err := NewMessage(conv.ID, RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conv.Append(*msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var roundTripped Conversation
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if roundTripped.ID != conv.ID || len(roundTripped.Messages) != 1 ||
		roundTripped.Messages[0].Content != "hello" || roundTripped.Status != ConversationActive {
		t.Fatalf("round trip mismatch: got %+v", roundTripped)
	}
}
