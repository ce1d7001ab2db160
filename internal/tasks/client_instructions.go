package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/notesync/internal/cloud"
)

// ExecuteClientInstructionsTask forwards instructions issued by the backend.
type ExecuteClientInstructionsTask struct {
	AttemptID    string                    `json:"attempt_id"`
	Instructions []cloud.ClientInstruction `json:"instructions"`
}

// Config returns the queue configuration for client instruction tasks.
func (t ExecuteClientInstructionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "execute_client_instructions",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ExecuteClientInstructionsProcessor creates a processor function for ExecuteClientInstructionsTask.
func ExecuteClientInstructionsProcessor(uploader cloud.Uploader) backlite.QueueProcessor[ExecuteClientInstructionsTask] {
	return func(ctx context.Context, task ExecuteClientInstructionsTask) error {
		if uploader == nil {
			return fmt.Errorf("cloud uploader not configured")
		}

		if err := uploader.ExecuteClientInstructions(ctx, task.AttemptID, task.Instructions); err != nil {
			return fmt.Errorf("execute %d client instructions: %w", len(task.Instructions), err)
		}

		log.Printf("[TASK] Executed %d client instructions (attempt %s)", len(task.Instructions), task.AttemptID)
		return nil
	}
}

// NewExecuteClientInstructionsQueue creates a backlite queue for client instruction tasks.
func NewExecuteClientInstructionsQueue(uploader cloud.Uploader) backlite.Queue {
	return backlite.NewQueue(ExecuteClientInstructionsProcessor(uploader))
}
