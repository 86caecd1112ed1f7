// Package llmtest provides a scripted oracle for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

var ErrNoReply = errors.New("no scripted reply left")

// Oracle replays Replies in order. A Reply with Err set fails that call.
type Oracle struct {
	mu      sync.Mutex
	Replies []Reply
	idx     int

	Calls []Call
}

type Reply struct {
	Completion contractx.Completion
	Err        error
}

type Call struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

func New(replies ...Reply) *Oracle {
	return &Oracle{Replies: replies}
}

// Text is a terminal text reply.
func Text(s string) Reply {
	return Reply{Completion: contractx.Completion{Text: s}}
}

// ToolCall is a reply requesting a single tool call.
func ToolCall(id, name string, args map[string]any) Reply {
	return Reply{Completion: contractx.Completion{
		ToolCalls: []contractx.ToolCall{{ID: id, Name: name, Args: args}},
	}}
}

func Fail(err error) Reply {
	return Reply{Err: err}
}

func (o *Oracle) Complete(_ context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (contractx.Completion, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Calls = append(o.Calls, Call{Messages: messages, Tools: tools})
	if o.idx >= len(o.Replies) {
		return contractx.Completion{}, ErrNoReply
	}
	r := o.Replies[o.idx]
	o.idx++
	if r.Err != nil {
		return contractx.Completion{}, r.Err
	}
	return r.Completion, nil
}

// CallCount returns how many times Complete ran.
func (o *Oracle) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Calls)
}

// Repeat returns n copies of r.
func Repeat(r Reply, n int) []Reply {
	out := make([]Reply, n)
	for i := range out {
		out[i] = r
	}
	return out
}
