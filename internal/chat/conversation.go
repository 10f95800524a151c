// Package chat runs a question-and-answer conversation about a user's reading.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pathlet/internal/insights"
	"pathlet/internal/result"
)

// Sender tells who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

const (
	MessageEmptyQuestion = "Please enter a question"
	MessageAskFailed     = "Failed to get AI response"
	MessageNoGeneration  = "I apologize, but I could not generate a response."
)

// Message is one entry of the conversation
type Message struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// Greeting is the first thing the guide says about ins.
func Greeting(ins *insights.Insights) string {
	return fmt.Sprintf("Hello! I'm your AI guide for understanding your personal insights. "+
		"I see you have a %s energy type with a %s sun sign. What would you like to know more about?",
		ins.HumanDesign.EnergyType, ins.Astrology.SunSign)
}

func prompt(ins *insights.Insights, question string) string {
	return fmt.Sprintf("Context: User has %s energy type, %s sun sign. Question: %s",
		ins.HumanDesign.EnergyType, ins.Astrology.SunSign, question)
}

// Conversation is the message history between one user and the guide.
type Conversation struct {
	insights *insights.Insights
	inferer  Inferer
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	messages []Message
}

// NewConversation starts a conversation about ins with the greeting already in place.
func NewConversation(ins *insights.Insights, inferer Inferer, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conversation{
		insights: ins,
		inferer:  inferer,
		logger:   logger,
		now:      time.Now,
	}
	c.messages = []Message{{ID: 0, Text: Greeting(ins), Sender: SenderAI, CreatedAt: c.now()}}
	return c
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) append(text string, sender Sender) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Message{ID: len(c.messages), Text: text, Sender: sender, CreatedAt: c.now()}
	c.messages = append(c.messages, m)
	return m
}

// Ask records question and the guide's answer. The question stays in the history
// even when no answer could be obtained.
func (c *Conversation) Ask(ctx context.Context, question string) result.Result[Message] {
	question = strings.TrimSpace(question)
	if question == "" {
		return result.Fail[Message](&result.Failure{
			Message: MessageEmptyQuestion,
			Fields:  map[string]string{"question": MessageEmptyQuestion},
		})
	}
	c.append(question, SenderUser)

	text, err := c.inferer.Generate(ctx, prompt(c.insights, question))
	if err != nil {
		c.logger.Error("Failed to get AI response", "error", err)
		return result.Fail[Message](&result.Failure{Message: MessageAskFailed, Cause: err})
	}
	if strings.TrimSpace(text) == "" {
		text = MessageNoGeneration
	}
	return result.Ok(c.append(text, SenderAI))
}
