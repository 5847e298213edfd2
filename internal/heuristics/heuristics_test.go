package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/kotae/internal/models"
)

func turn(role, content string) models.ConversationTurn {
	return models.ConversationTurn{Role: role, Content: content}
}

func TestClassify(t *testing.T) {
	askedName := []models.ConversationTurn{
		turn(models.RoleUser, "hello"),
		turn(models.RoleAssistant, "Hi! I'm Kai from Acme. What name should I call you?"),
	}
	tests := []struct {
		name     string
		question string
		history  []models.ConversationTurn
		want     Classification
	}{
		{"empty", "   ", nil, Classification{Kind: KindNone}},
		{"greeting", "Hello!", nil, Classification{Kind: KindGreeting}},
		{"greeting with filler", "hey there", nil, Classification{Kind: KindGreeting}},
		{"good morning", "Good   morning.", nil, Classification{Kind: KindGreeting}},
		{"thanks", "Thank you so much!", nil, Classification{Kind: KindThanks}},
		{"farewell", "bye", nil, Classification{Kind: KindFarewell}},
		{"have a nice day", "Have a nice day!", nil, Classification{Kind: KindFarewell}},
		{"greeting inside question", "hello, what is your refund policy?", nil, Classification{Kind: KindNone}},
		{"direct name", "Hi, I'm sarah", nil, Classification{Kind: KindDirectName, Name: "Sarah"}},
		{"strong cue with trailing text", "my name is John and I need a refund", nil, Classification{Kind: KindDirectName, Name: "John"}},
		{"direct name wins over history", "call me Ana", askedName, Classification{Kind: KindDirectName, Name: "Ana"}},
		{"name reply", "maria lopez", askedName, Classification{Kind: KindNameReply, Name: "Maria Lopez"}},
		{"name reply needs request", "maria lopez", nil, Classification{Kind: KindNone}},
		{"name reply rejects question words", "what refund", askedName, Classification{Kind: KindNone}},
		{"human intent", "Can I speak to a human?", nil, Classification{Kind: KindHumanIntent}},
		{"ordinary question", "What is your refund policy?", nil, Classification{Kind: KindNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.question, tt.history))
		})
	}
}

func TestDirectName(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"I am John Smith", "John Smith", true},
		{"i'm   o'brien", "O'brien", true},
		{"This is Mei.", "Mei", true},
		{"it's Jean-Luc!", "Jean-luc", true},
		{"Thanks, my name is alex, how are you", "Alex", true},
		{"I'm looking for the refund policy", "", false},
		{"this is urgent", "", false},
		{"I am not sure", "", false},
		{"I'm John and I want a refund", "", false},
		{"call me back tomorrow", "", false},
		{"my name is J", "", false},
		{"I am a b c d", "", false},
	}
	for _, tt := range tests {
		got, ok := DirectName(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestNameReply(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"sam", "Sam", true},
		{"Ana Maria Silva", "Ana Maria Silva", true},
		{"Ana Maria Silva Costa", "", false},
		{"sam.", "", false},
		{"why?", "", false},
		{"help", "", false},
		{"yes please", "", false},
		{"a/b", "", false},
	}
	for _, tt := range tests {
		got, ok := NameReply(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestKnownName(t *testing.T) {
	assert.Equal(t, "", KnownName(nil))

	history := []models.ConversationTurn{
		turn(models.RoleUser, "I'm Tom"),
		turn(models.RoleAssistant, "Nice to meet you, Tom!"),
		turn(models.RoleUser, "what are your hours?"),
	}
	assert.Equal(t, "Tom", KnownName(history))

	history = append(history,
		turn(models.RoleAssistant, "Sorry, what name should I call you?"),
		turn(models.RoleUser, "Thomas"),
	)
	assert.Equal(t, "Thomas", KnownName(history), "latest statement wins")

	unprompted := []models.ConversationTurn{
		turn(models.RoleAssistant, "How can I help?"),
		turn(models.RoleUser, "Refunds"),
	}
	assert.Equal(t, "", KnownName(unprompted))
}

func TestHumanIntent(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"Can I speak to a human?", true},
		{"I want to talk with a real person", true},
		{"please connect me to an agent", true},
		{"Get me a live agent now", true},
		{"transfer me to customer service", true},
		{"Can I talk to someone from sales", true},
		{"Can I speak with your manager?", true},
		{"escalate this to a human", true},
		{"How do I get my manager to approve an expense?", false},
		{"Can I put a staff discount on my order?", false},
		{"How do I contact my account manager's assistant settings page?", false},
		{"How do I add a new agent to my account?", false},
		{"I'd like to speak to the HR department", false},
		{"What does human resources handle?", false},
		{"Where can I read about human rights?", false},
		{"What is your refund policy?", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanIntent(tt.q), tt.q)
	}
}

func TestReplies(t *testing.T) {
	r := Replies{CompanyName: "Acme", BotName: "Kai"}
	assert.Equal(t, "Hi! I'm Kai from Acme. What name should I call you?", r.SmallTalk(KindGreeting, ""))
	assert.True(t, AsksForName(r.NameRequest()), "name request must be recognised on the next turn")
	assert.Contains(t, r.SmallTalk(KindGreeting, "Sam"), "Welcome back, Sam!")
	assert.Equal(t, "You're welcome, Sam! Is there anything else I can help you with?", r.SmallTalk(KindThanks, "Sam"))
	assert.Contains(t, r.SmallTalk(KindFarewell, ""), "Goodbye! ")
	assert.Contains(t, r.NameAck("Sam"), "Nice to meet you, Sam!")
}
