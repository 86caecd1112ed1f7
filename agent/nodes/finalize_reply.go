package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Response.Text = strings.TrimSpace(in.Response.Text)
	if in.Response.Text == "" {
		return GraphOutput{}, fmt.Errorf("%w: empty reply", contractx.ErrValidation)
	}
	return GraphOutput{SessionID: in.SessionID, Response: in.Response}, nil
}
