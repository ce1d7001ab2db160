package migration

import (
	"errors"
	"fmt"

	"github.com/mrlokans/notesync/internal/entities"
)

// DefaultChunkSize is the page size for chunked collections.
const DefaultChunkSize = 500

var ErrInvalidPlan = errors.New("invalid migration plan")

// Step migrates one collection. Chunked collections are read and pushed
// page by page, the rest in a single read.
type Step struct {
	Collection string
	Chunked    bool
}

// Plan is the ordered list of collections to push. Later collections may
// reference earlier ones, so the backend must receive them in this order.
type Plan []Step

// DefaultPlan pushes page data, then annotation data, then list data, then
// tags, settings and templates. Favicons are not migrated.
var DefaultPlan = Plan{
	{Collection: entities.CollectionPages, Chunked: true},
	{Collection: entities.CollectionVisits, Chunked: true},
	{Collection: entities.CollectionBookmarks},

	{Collection: entities.CollectionAnnotations},
	{Collection: entities.CollectionAnnotationPrivacyLevels},
	{Collection: entities.CollectionSharedAnnotationMetadata},

	{Collection: entities.CollectionCustomLists},
	{Collection: entities.CollectionPageListEntries},
	{Collection: entities.CollectionSharedListMetadata},

	{Collection: entities.CollectionTags},
	{Collection: entities.CollectionSettings},
	{Collection: entities.CollectionTemplates},
}

// Collections returns the collection names in plan order.
func (p Plan) Collections() []string {
	names := make([]string, 0, len(p))
	for _, step := range p {
		names = append(names, step.Collection)
	}
	return names
}

// Validate rejects empty plans, unnamed steps and repeated collections.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}
	seen := make(map[string]struct{}, len(p))
	for i, step := range p {
		if step.Collection == "" {
			return fmt.Errorf("%w: step %d has no collection", ErrInvalidPlan, i)
		}
		if _, ok := seen[step.Collection]; ok {
			return fmt.Errorf("%w: collection %s listed twice", ErrInvalidPlan, step.Collection)
		}
		seen[step.Collection] = struct{}{}
	}
	return nil
}
