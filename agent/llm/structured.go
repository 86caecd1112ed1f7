package llm

import (
	"context"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

// CompileStructured builds prompt -> oracle -> parse_json. normalize, when
// set, rewrites the raw reply before it is decoded into T.
func CompileStructured[T any](
	ctx context.Context,
	oracle contractx.Oracle,
	template einoprompt.ChatTemplate,
	normalize func(string) string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is nil", contractx.ErrValidation)
	}

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddLambdaNode("oracle", compose.InvokableLambda(oracleNode(oracle, normalize))); err != nil {
		return nil, fmt.Errorf("add structured oracle node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "oracle"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->oracle: %w", err)
	}
	if err := graph.AddEdge("oracle", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge oracle->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}

// CompileText builds prompt -> oracle and returns the reply text.
func CompileText(
	ctx context.Context,
	oracle contractx.Oracle,
	template einoprompt.ChatTemplate,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is nil", contractx.ErrValidation)
	}

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add text prompt node: %w", err)
	}
	if err := graph.AddLambdaNode("oracle", compose.InvokableLambda(oracleNode(oracle, nil))); err != nil {
		return nil, fmt.Errorf("add text oracle node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add text edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "oracle"); err != nil {
		return nil, fmt.Errorf("add text edge prompt->oracle: %w", err)
	}
	if err := graph.AddEdge("oracle", compose.END); err != nil {
		return nil, fmt.Errorf("add text edge oracle->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile text graph: %w", err)
	}
	return runner, nil
}

func oracleNode(oracle contractx.Oracle, normalize func(string) string) func(context.Context, []*schema.Message) (*schema.Message, error) {
	return func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
		out, err := oracle.Complete(ctx, msgs, nil)
		if err != nil {
			return nil, err
		}
		content := out.Text
		if normalize != nil {
			content = normalize(content)
		}
		return schema.AssistantMessage(content, nil), nil
	}
}

// ExtractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object or array in s.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
