package orchestratornode

import (
	"github.com/cloudwego/eino/schema"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// DefaultMaxRetries allows three attempts per step.
	DefaultMaxRetries = 2

	unableToPlan = "I was unable to form a plan for that request. Could you rephrase it or break it into smaller parts?"

	recentTaskLimit = 3
	recallLimit     = 3
	taskResultLimit = 500
)

func turnsToMessages(turns []statex.Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case roleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case roleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return msgs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
