package transform

import (
	"context"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
)

// Trigger describes the warehouse load a transformation should act on.
type Trigger struct {
	RunID       string    `json:"run_id"`
	Table       string    `json:"table"`
	Rows        int       `json:"rows"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// NoopTransformer is used when no downstream transformation is configured.
type NoopTransformer struct{}

func (NoopTransformer) Transform(_ context.Context, _ Trigger) types.TransformResult {
	return types.TransformResult{Skipped: true, Detail: "transform disabled"}
}
