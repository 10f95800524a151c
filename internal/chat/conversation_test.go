package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathlet/internal/insights"
	"pathlet/internal/logger"
)

type fakeInferer struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeInferer) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func testInsights(t *testing.T) *insights.Insights {
	t.Helper()
	ins, err := insights.NewStaticGenerator().Generate(context.Background(), &insights.BirthDetails{
		Date: "1990-08-14", Time: "06:30", City: "Lisbon", Country: "Portugal",
	})
	require.NoError(t, err)
	return ins
}

func TestConversation_Greeting(t *testing.T) {
	conv := NewConversation(testInsights(t), &fakeInferer{}, logger.Discard())

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderAI, msgs[0].Sender)
	assert.Equal(t, "Hello! I'm your AI guide for understanding your personal insights. "+
		"I see you have a Generator energy type with a Leo sun sign. What would you like to know more about?", msgs[0].Text)
}

func TestConversation_Ask(t *testing.T) {
	inf := &fakeInferer{text: "Respond to what lights you up."}
	conv := NewConversation(testInsights(t), inf, logger.Discard())

	res := conv.Ask(context.Background(), "  What should I do next?  ")
	require.True(t, res.OK())
	assert.Equal(t, "Respond to what lights you up.", res.Value.Text)
	assert.Equal(t, SenderAI, res.Value.Sender)
	assert.Equal(t, 2, res.Value.ID)

	require.Len(t, inf.prompts, 1)
	assert.Equal(t, "Context: User has Generator energy type, Leo sun sign. Question: What should I do next?", inf.prompts[0])

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, SenderUser, msgs[1].Sender)
	assert.Equal(t, "What should I do next?", msgs[1].Text)
}

func TestConversation_AskEmptyGeneration(t *testing.T) {
	conv := NewConversation(testInsights(t), &fakeInferer{text: "  "}, logger.Discard())

	res := conv.Ask(context.Background(), "Hello?")
	require.True(t, res.OK())
	assert.Equal(t, MessageNoGeneration, res.Value.Text)
}

func TestConversation_AskFailure(t *testing.T) {
	conv := NewConversation(testInsights(t), &fakeInferer{err: errors.New("timeout")}, logger.Discard())

	res := conv.Ask(context.Background(), "Hello?")
	require.False(t, res.OK())
	assert.Equal(t, "Failed to get AI response", res.Err.Message)
	// The question is kept, no answer is added.
	assert.Len(t, conv.Messages(), 2)
}

func TestConversation_AskEmptyQuestion(t *testing.T) {
	inf := &fakeInferer{}
	conv := NewConversation(testInsights(t), inf, logger.Discard())

	res := conv.Ask(context.Background(), "   ")
	require.False(t, res.OK())
	assert.Equal(t, MessageEmptyQuestion, res.Err.Message)
	assert.Empty(t, inf.prompts)
	assert.Len(t, conv.Messages(), 1)
}
