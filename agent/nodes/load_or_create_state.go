package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// SessionDefaults apply to sessions created on their first turn.
type SessionDefaults struct {
	BufferSize     int
	PrivacyEnabled bool
}

func LoadOrCreateSession(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	defaults SessionDefaults,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
		st.EnsureEntities()
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewSessionState(in.SessionID, defaults.BufferSize, defaults.PrivacyEnabled, in.Now)
	default:
		return nil, err
	}

	in.Session = st
	return in, nil
}
