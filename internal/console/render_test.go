// ABOUTME: Tests for terminal rendering
// ABOUTME: Covers list numbering, sender labels and bot-mode annotations

package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/qualiver/agent-console/internal/store"
)

func plainRenderer() (*Renderer, *bytes.Buffer) {
	color.NoColor = true
	var buf bytes.Buffer
	return NewRenderer(&buf), &buf
}

func TestConversationList_NumbersAndMarksSelection(t *testing.T) {
	r, buf := plainRenderer()

	r.ConversationList([]store.Conversation{
		{ID: "c1", ContactName: "Maria", PhoneNumber: "+34600", BotActive: true},
		{ID: "c2", PhoneNumber: "+34601", BotActive: false},
	}, "c2")

	out := buf.String()
	assert.Contains(t, out, " 1. Maria")
	assert.Contains(t, out, "* 2. +34601")
	assert.Contains(t, out, "[bot]")
	assert.Contains(t, out, "[manual]")
}

func TestConversationList_Empty(t *testing.T) {
	r, buf := plainRenderer()
	r.ConversationList(nil, "")
	assert.Contains(t, buf.String(), "No conversations yet.")
}

func TestMessage_SenderLabelsAndAnnotations(t *testing.T) {
	r, buf := plainRenderer()
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.Local)

	r.Message(store.Message{Sender: store.SenderUser, Content: "hola", CreatedAt: at})
	r.Message(store.Message{Sender: store.SenderBot, Content: "hi there", CreatedAt: at})
	r.Message(store.Message{Sender: store.SenderAgent, Content: "let me check", CreatedAt: at, BotActive: false})
	r.Message(store.Message{Sender: store.SenderUser, Content: "photo", CreatedAt: at, MediaURL: "https://cdn.test/p.jpg"})
	r.Message(store.Message{Sender: store.SenderUser, Content: "lost", CreatedAt: at, Status: store.StatusFailed})

	out := buf.String()
	assert.Contains(t, out, "user: hola")
	assert.Contains(t, out, "bot: hi there")
	assert.Contains(t, out, "agent: let me check (manual)")
	assert.Contains(t, out, "[media: https://cdn.test/p.jpg]")
	assert.Contains(t, out, "(failed)")
}
