// Package notifiertest provides a recording Messenger for tests.
package notifiertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"loyaltybot/internal/models"
)

var ErrBlocked = errors.New("Forbidden: bot was blocked by the user")

type Sent struct {
	ChatID int64
	Reply  models.Reply
}

type Edited struct {
	ChatID    int64
	MessageID int
	Reply     models.Reply
}

type Document struct {
	ChatID  int64
	Path    string
	Caption string
}

// Recorder stores every outbound call. Chats listed in Blocked fail on Send.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	Sent      []Sent
	Edited    []Edited
	Answered  []string
	Documents []Document
	Blocked   map[int64]bool
}

func New() *Recorder {
	return &Recorder{nextID: 1000, Blocked: make(map[int64]bool)}
}

func (r *Recorder) Block(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Blocked[chatID] = true
}

func (r *Recorder) Send(_ context.Context, chatID int64, reply models.Reply) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Blocked[chatID] {
		return 0, ErrBlocked
	}
	r.nextID++
	r.Sent = append(r.Sent, Sent{ChatID: chatID, Reply: reply})
	return r.nextID, nil
}

func (r *Recorder) Edit(_ context.Context, chatID int64, messageID int, reply models.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Edited = append(r.Edited, Edited{ChatID: chatID, MessageID: messageID, Reply: reply})
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Answered = append(r.Answered, callbackID)
	return nil
}

func (r *Recorder) SendDocument(_ context.Context, chatID int64, path, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Blocked[chatID] {
		return ErrBlocked
	}
	r.Documents = append(r.Documents, Document{ChatID: chatID, Path: path, Caption: caption})
	return nil
}

// To returns the messages sent to chatID in order.
func (r *Recorder) To(chatID int64) []models.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reply
	for _, s := range r.Sent {
		if s.ChatID == chatID {
			out = append(out, s.Reply)
		}
	}
	return out
}

// Last returns the latest message sent to chatID, or a zero Reply.
func (r *Recorder) Last(chatID int64) models.Reply {
	msgs := r.To(chatID)
	if len(msgs) == 0 {
		return models.Reply{}
	}
	return msgs[len(msgs)-1]
}

// LastEdit returns the latest edit, or a zero value.
func (r *Recorder) LastEdit() Edited {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Edited) == 0 {
		return Edited{}
	}
	return r.Edited[len(r.Edited)-1]
}

// Contains reports whether any message to chatID contains substr.
func (r *Recorder) Contains(chatID int64, substr string) bool {
	for _, m := range r.To(chatID) {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = nil
	r.Edited = nil
	r.Answered = nil
	r.Documents = nil
}
