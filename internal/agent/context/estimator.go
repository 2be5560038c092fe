// Package context keeps the conversation inside the model window. It
// estimates token usage, truncates oversized tool output, and prunes
// old history when the window fills up.
package context

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// Estimator approximates the token cost of one message.
type Estimator interface {
	EstimateMessage(msg models.Message) int
}

// CharEstimator is the default estimator: ceil(len(content)/divisor)
// plus, per tool call, the length of the name and the canonical JSON
// form of the arguments. Cheap, deterministic, and the basis of every
// pruning threshold.
type CharEstimator struct {
	// Divisor defaults to 3 when zero or negative.
	Divisor int
}

// EstimateMessage implements Estimator.
func (e CharEstimator) EstimateMessage(msg models.Message) int {
	div := e.Divisor
	if div <= 0 {
		div = 3
	}
	chars := len(msg.Content)
	tokens := (chars + div - 1) / div
	for _, call := range msg.ToolCalls {
		tokens += len(call.Name) + len(tools.CanonicalJSON(call.Arguments))
	}
	return tokens
}

// TiktokenEstimator counts tokens with a real BPE encoding. It is
// opt-in via settings for display-grade stats; the char estimator
// remains authoritative for pruning.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding (for example
// "cl100k_base").
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// EstimateMessage implements Estimator.
func (e *TiktokenEstimator) EstimateMessage(msg models.Message) int {
	tokens := len(e.enc.Encode(msg.Content, nil, nil))
	for _, call := range msg.ToolCalls {
		tokens += len(e.enc.Encode(call.Name, nil, nil))
		tokens += len(e.enc.Encode(tools.CanonicalJSON(call.Arguments), nil, nil))
	}
	return tokens
}
