package agent

import (
	"context"
	"sync"

	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// executeTools runs every call in its own goroutine and returns the
// tool messages in request order, regardless of completion order.
func (a *Agent) executeTools(ctx context.Context, calls []models.ToolCall) []models.Message {
	outputs := make([]string, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			outputs[i] = a.registry.Execute(ctx, tools.CallFrom(call))
		}(i, call)
	}
	wg.Wait()

	messages := make([]models.Message, len(calls))
	for i, call := range calls {
		messages[i] = models.Message{
			Role:       models.RoleTool,
			Content:    outputs[i],
			ToolCallID: call.ID,
			ToolName:   call.Name,
		}
	}
	return messages
}
