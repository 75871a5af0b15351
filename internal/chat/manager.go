// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/model"
)

// Errors returned by Manager operations.
var (
	ErrNotFound    = errors.New("conversation not found")
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Persister is the subset of storage.Store the manager writes through to.
type Persister interface {
	SaveChats(ctx context.Context, chats []*model.Conversation) error
	SaveActive(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Snapshot is a deep copy of the collection at one point in time.
type Snapshot struct {
	// Chats is ordered newest first.
	Chats    []*model.Conversation
	ActiveID string
}

// Active returns the active conversation in the snapshot, or nil.
func (s Snapshot) Active() *model.Conversation {
	for _, c := range s.Chats {
		if c.ID == s.ActiveID {
			return c
		}
	}
	return nil
}

// Observer receives a Snapshot after every mutation. Observers run
// synchronously with the manager's publish lock held, so an observer must
// not call its own unsubscribe function or any Manager mutation; hand such
// work to another goroutine.
type Observer func(Snapshot)

// Exchange describes the messages appended by Submit.
type Exchange struct {
	ConversationID string
	User           *model.Message
	Placeholder    *model.Message
	// History holds the messages that preceded User.
	History []*model.Message
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the conversation collection.
type Manager struct {
	mu     sync.Mutex
	byID   map[string]*model.Conversation
	order  []string
	active string

	// publishMu is taken before mu is released so persistence and
	// notification happen in mutation order.
	publishMu sync.Mutex
	observers map[int]Observer
	nextObs   int

	streams   map[string]map[int]context.CancelFunc
	nextToken int

	store        Persister
	defaultTitle string
	log          zerolog.Logger
}

// NewManager creates an empty manager. New conversations are titled
// defaultTitle until their first prompt.
func NewManager(store Persister, defaultTitle string, log zerolog.Logger) *Manager {
	return &Manager{
		byID:         make(map[string]*model.Conversation),
		observers:    make(map[int]Observer),
		streams:      make(map[string]map[int]context.CancelFunc),
		store:        store,
		defaultTitle: defaultTitle,
		log:          log.With().Str("component", "chat").Logger(),
	}
}

// Load replaces the collection with previously persisted state. A dangling
// active ID is dropped. Nothing is written back.
func (m *Manager) Load(chats []*model.Conversation, activeID string) {
	m.mu.Lock()
	m.byID = make(map[string]*model.Conversation, len(chats))
	m.order = make([]string, 0, len(chats))
	for _, c := range chats {
		if c == nil || c.ID == "" {
			continue
		}
		if _, dup := m.byID[c.ID]; dup {
			continue
		}
		m.byID[c.ID] = c.Clone()
		m.order = append(m.order, c.ID)
	}
	m.active = ""
	if _, ok := m.byID[activeID]; ok {
		m.active = activeID
	}
	m.commit(context.Background(), persistNone)
}

// =============================================================================
// OBSERVERS
// =============================================================================

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Observer) func() {
	m.publishMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.publishMu.Unlock()

	return func() {
		m.publishMu.Lock()
		delete(m.observers, id)
		m.publishMu.Unlock()
	}
}

// persist selects the records a mutation writes through.
type persist uint8

const (
	persistChats persist = 1 << iota
	persistActive
	persistClear
	// notifySkip persists without notifying observers.
	notifySkip

	persistNone persist = 0
)

// commit must be called with mu held; it releases mu. It writes the
// requested records and, unless notifySkip is set, notifies observers with
// a fresh snapshot.
func (m *Manager) commit(ctx context.Context, what persist) {
	snap := m.snapshotLocked()
	m.publishMu.Lock()
	m.mu.Unlock()
	defer m.publishMu.Unlock()

	if m.store != nil {
		// Persistence failures are logged by the store; the in-memory
		// state stays authoritative.
		if what&persistClear != 0 {
			_ = m.store.Clear(ctx)
		}
		if what&persistChats != 0 {
			_ = m.store.SaveChats(ctx, snap.Chats)
		}
		if what&persistActive != 0 {
			_ = m.store.SaveActive(ctx, snap.ActiveID)
		}
	}

	if what&notifySkip != 0 {
		return
	}
	for _, fn := range m.observers {
		fn(snap)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	chats := make([]*model.Conversation, 0, len(m.order))
	for _, id := range m.order {
		chats = append(chats, m.byID[id].Clone())
	}
	return Snapshot{Chats: chats, ActiveID: m.active}
}

// =============================================================================
// QUERIES
// =============================================================================

// Snapshot returns a copy of the current collection.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Get returns a copy of the conversation with the given ID.
func (m *Manager) Get(id string) (*model.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Active returns a copy of the active conversation, or nil.
func (m *Manager) Active() *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[m.active].Clone()
}

// ActiveID returns the active conversation ID, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Len returns the number of conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// NewChat prepends an empty conversation and makes it active.
func (m *Manager) NewChat(ctx context.Context) *model.Conversation {
	conv := model.NewConversation(m.defaultTitle)

	m.mu.Lock()
	m.byID[conv.ID] = conv
	m.order = append([]string{conv.ID}, m.order...)
	m.active = conv.ID
	out := conv.Clone()
	m.commit(ctx, persistChats|persistActive)

	m.log.Info().Str("conversation", conv.ID).Msg("chat_created")
	return out
}

// Select makes id the active conversation.
func (m *Manager) Select(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.byID[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.active = id
	m.commit(ctx, persistActive)
	return nil
}

// Delete removes a conversation and cancels any generation still writing
// to it. If it was active, the first remaining conversation becomes active,
// or none if the collection is now empty.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.byID[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	activeChanged := false
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
		activeChanged = true
	}
	m.cancelStreamsLocked(id)
	what := persistChats
	if activeChanged {
		what |= persistActive
	}
	m.commit(ctx, what)

	m.log.Info().Str("conversation", id).Msg("chat_deleted")
	return nil
}

// ClearAll removes every conversation, cancels all generations and erases
// the persisted chats and active pointer.
func (m *Manager) ClearAll(ctx context.Context) {
	m.mu.Lock()
	for id := range m.streams {
		m.cancelStreamsLocked(id)
	}
	m.byID = make(map[string]*model.Conversation)
	m.order = nil
	m.active = ""
	m.commit(ctx, persistClear)

	m.log.Info().Msg("chats_cleared")
}

// Submit appends the user's prompt and an assistant placeholder of the
// given kind in one mutation. The conversation title is derived from text
// only if the conversation had no messages.
func (m *Manager) Submit(ctx context.Context, convID, text string, kind model.Kind) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}

	m.mu.Lock()
	conv, ok := m.byID[convID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	history := make([]*model.Message, len(conv.Messages))
	for i, msg := range conv.Messages {
		history[i] = msg.Clone()
	}

	user := model.NewUserMessage(text)
	placeholder := model.NewPlaceholder(kind)
	conv.AddExchange(user, placeholder)

	ex := &Exchange{
		ConversationID: convID,
		User:           user.Clone(),
		Placeholder:    placeholder.Clone(),
		History:        history,
	}
	m.commit(ctx, persistChats)
	return ex, nil
}

// UpdateMessage applies fn to one message if both the conversation and the
// message still exist, then persists and publishes. It reports whether the
// update was applied; a deleted conversation is never recreated.
func (m *Manager) UpdateMessage(ctx context.Context, convID, msgID string, fn func(*model.Message)) bool {
	return m.updateMessage(ctx, convID, msgID, fn, persistChats)
}

// SettleMessage is UpdateMessage without the republish: the change is
// persisted but observers are not notified. It is meant for status-only
// transitions whose content observers have already seen.
func (m *Manager) SettleMessage(ctx context.Context, convID, msgID string, fn func(*model.Message)) bool {
	return m.updateMessage(ctx, convID, msgID, fn, persistChats|notifySkip)
}

func (m *Manager) updateMessage(ctx context.Context, convID, msgID string, fn func(*model.Message), what persist) bool {
	m.mu.Lock()
	conv, ok := m.byID[convID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	msg := conv.MessageByID(msgID)
	if msg == nil {
		m.mu.Unlock()
		return false
	}
	fn(msg)
	m.commit(ctx, what)
	return true
}

// =============================================================================
// STREAM REGISTRY
// =============================================================================

// BindStream derives a context that is cancelled when the conversation is
// deleted or the collection cleared. Callers must invoke release when the
// generation ends. If the conversation no longer exists the returned
// context is already cancelled.
func (m *Manager) BindStream(ctx context.Context, convID string) (context.Context, func()) {
	sctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if _, ok := m.byID[convID]; !ok {
		m.mu.Unlock()
		cancel()
		return sctx, func() {}
	}
	token := m.nextToken
	m.nextToken++
	if m.streams[convID] == nil {
		m.streams[convID] = make(map[int]context.CancelFunc)
	}
	m.streams[convID][token] = cancel
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		if set := m.streams[convID]; set != nil {
			delete(set, token)
			if len(set) == 0 {
				delete(m.streams, convID)
			}
		}
		m.mu.Unlock()
		cancel()
	}
	return sctx, release
}

// ActiveStreams returns the number of generations bound to convID.
func (m *Manager) ActiveStreams(convID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams[convID])
}

func (m *Manager) cancelStreamsLocked(convID string) {
	for _, cancel := range m.streams[convID] {
		cancel()
	}
	delete(m.streams, convID)
}
