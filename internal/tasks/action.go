package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/notesync/internal/cloud"
)

type ActionType string

const (
	ActionTypePushObject                ActionType = "push-object"
	ActionTypeExecuteClientInstructions ActionType = "execute-client-instructions"
)

// Action is a unit of work for the sync queue. Only the fields matching
// Type are set.
type Action struct {
	Type               ActionType
	Seq                int // push order within an attempt, set by Enqueuer
	Collection         string
	Objects            []map[string]any
	ClientInstructions []cloud.ClientInstruction
}

// PushObject builds an action that uploads a batch of records of one collection.
func PushObject(collection string, objects []map[string]any) Action {
	return Action{
		Type:       ActionTypePushObject,
		Collection: collection,
		Objects:    objects,
	}
}

// ExecuteClientInstructions builds an action that runs backend-issued instructions.
func ExecuteClientInstructions(instructions []cloud.ClientInstruction) Action {
	return Action{
		Type:               ActionTypeExecuteClientInstructions,
		ClientInstructions: instructions,
	}
}

// Task converts the action into the backlite task that carries it.
func (a Action) Task(attemptID string) (backlite.Task, error) {
	switch a.Type {
	case ActionTypePushObject:
		if a.Collection == "" {
			return nil, fmt.Errorf("push-object action without collection")
		}
		objects := a.Objects
		if objects == nil {
			objects = []map[string]any{}
		}
		raw, err := json.Marshal(objects)
		if err != nil {
			return nil, fmt.Errorf("encode %s objects: %w", a.Collection, err)
		}
		return PushObjectTask{
			AttemptID:  attemptID,
			Seq:        a.Seq,
			Collection: a.Collection,
			Count:      len(objects),
			Objects:    raw,
		}, nil

	case ActionTypeExecuteClientInstructions:
		instructions := a.ClientInstructions
		if instructions == nil {
			instructions = []cloud.ClientInstruction{}
		}
		return ExecuteClientInstructionsTask{
			AttemptID:    attemptID,
			Instructions: instructions,
		}, nil

	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
}
