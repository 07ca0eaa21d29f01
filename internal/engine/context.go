package engine

import (
	"time"

	"github.com/solidlime/memoryengine/internal/config"
	"github.com/solidlime/memoryengine/internal/pcontext"
	"github.com/solidlime/memoryengine/internal/store"
)

// ContextView is the `get_context` sub-operation result (§3, §6): the
// persona context document enriched with the store's current anniversaries,
// active promise/goal, and always-in-context memory blocks.
type ContextView struct {
	Context        pcontext.Context
	ActivePromise  *store.Promise
	ActiveGoal     *store.Goal
	MemoryBlocks   []*store.MemoryBlock
}

// GetContext touches the persona context document's last-conversation
// timestamp, reloads it, and folds in the live anniversary/promise/goal/
// memory-block state from the durable store — the operation every tool
// call is expected to begin with (§4.1's Design Notes on context
// resolution happening once per request).
func (e *Engine) GetContext(persona string, now time.Time) (*ContextView, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}

	path := config.ContextPath(persona)
	if err := pcontext.TouchLastConversationTime(path, persona, now); err != nil {
		return nil, err
	}
	ctx, err := pcontext.Load(path, persona)
	if err != nil {
		return nil, err
	}

	anniversaries, err := p.DB.Anniversaries(now)
	if err != nil {
		return nil, err
	}
	ctx.Anniversaries = make([]pcontext.Anniversary, 0, len(anniversaries))
	for _, a := range anniversaries {
		ctx.Anniversaries = append(ctx.Anniversaries, pcontext.Anniversary{
			Key: a.Key, Content: a.Content, Kind: a.Kind, YearsAgo: a.YearsAgo,
		})
	}

	var activePromise *store.Promise
	if promises, err := p.DB.ListPromises(store.StatusActive); err == nil && len(promises) > 0 {
		activePromise = promises[0]
		ctx.ActivePromiseID = &activePromise.ID
	}

	var activeGoal *store.Goal
	if goals, err := p.DB.ListGoals(store.StatusActive); err == nil && len(goals) > 0 {
		activeGoal = goals[0]
		ctx.ActiveGoalID = &activeGoal.ID
	}

	blocks, err := p.DB.ListMemoryBlocks()
	if err != nil {
		return nil, err
	}

	if err := pcontext.Save(path, ctx); err != nil {
		return nil, err
	}

	return &ContextView{
		Context:       ctx,
		ActivePromise: activePromise,
		ActiveGoal:    activeGoal,
		MemoryBlocks:  blocks,
	}, nil
}
