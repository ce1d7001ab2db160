package migration

import (
	"context"
	"fmt"
	"log"

	"github.com/mrlokans/notesync/internal/database"
	"github.com/mrlokans/notesync/internal/entities"
	"github.com/mrlokans/notesync/internal/tasks"
)

// Store runs fn inside one read/write transaction limited to tables.
type Store interface {
	Transaction(ctx context.Context, tables []string, fn func(ctx context.Context, r database.Reader) error) error
}

// EnqueueFunc returns once the action is durably queued. It receives the
// transaction context, so a queue on the same database joins the
// transaction.
type EnqueueFunc func(ctx context.Context, action tasks.Action) error

// Observer is told about every batch after it has been enqueued.
// It runs inside the transaction and must not write to the store.
type Observer interface {
	OnBatch(collection string, offset, records int)
}

// CollectionResult counts what was enqueued for one collection.
type CollectionResult struct {
	Collection string `json:"collection"`
	Actions    int    `json:"actions"`
	Records    int    `json:"records"`
}

// Result summarizes a committed preparation.
type Result struct {
	Actions     int                `json:"actions"`
	Records     int                `json:"records"`
	Collections []CollectionResult `json:"collections"`
}

type Option func(*Preparer)

// WithPlan replaces DefaultPlan.
func WithPlan(plan Plan) Option {
	return func(p *Preparer) {
		p.plan = plan
	}
}

// WithChunkSize sets the page size for chunked collections.
func WithChunkSize(size int) Option {
	return func(p *Preparer) {
		p.chunkSize = size
	}
}

// WithObserver registers a batch observer.
func WithObserver(o Observer) Option {
	return func(p *Preparer) {
		p.observer = o
	}
}

// WithExtraScope adds tables to the transaction scope without migrating them.
func WithExtraScope(tables ...string) Option {
	return func(p *Preparer) {
		p.extraScope = tables
	}
}

// Preparer turns the local collections into push actions for the sync queue.
type Preparer struct {
	store      Store
	enqueue    EnqueueFunc
	plan       Plan
	chunkSize  int
	extraScope []string
	observer   Observer
}

func NewPreparer(store Store, enqueue EnqueueFunc, opts ...Option) *Preparer {
	p := &Preparer{
		store:      store,
		enqueue:    enqueue,
		plan:       DefaultPlan,
		chunkSize:  DefaultChunkSize,
		extraScope: []string{entities.CollectionFavIcons},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scope returns the tables the transaction is limited to.
func (p *Preparer) Scope() []string {
	scope := p.plan.Collections()
	for _, table := range p.extraScope {
		if !contains(scope, table) {
			scope = append(scope, table)
		}
	}
	return scope
}

// Prepare enqueues every record of every planned collection, in plan order,
// inside a single transaction. On error nothing is reported as enqueued: the
// transaction has been rolled back together with any task written through it.
func (p *Preparer) Prepare(ctx context.Context) (Result, error) {
	if err := p.plan.Validate(); err != nil {
		return Result{}, err
	}
	if p.chunkSize <= 0 {
		return Result{}, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidPlan, p.chunkSize)
	}
	if p.store == nil || p.enqueue == nil {
		return Result{}, fmt.Errorf("migration preparer needs a store and an enqueue function")
	}

	var result Result
	err := p.store.Transaction(ctx, p.Scope(), func(ctx context.Context, r database.Reader) error {
		result = Result{Collections: make([]CollectionResult, 0, len(p.plan))}

		for _, step := range p.plan {
			cr, err := p.runStep(ctx, r, step)
			if err != nil {
				return err
			}
			result.Actions += cr.Actions
			result.Records += cr.Records
			result.Collections = append(result.Collections, cr)
			log.Printf("[MIGRATION] Queued %s: %d records in %d actions", cr.Collection, cr.Records, cr.Actions)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return result, nil
}

func (p *Preparer) runStep(ctx context.Context, r database.Reader, step Step) (CollectionResult, error) {
	cr := CollectionResult{Collection: step.Collection}

	if !step.Chunked {
		records, err := r.FindAll(ctx, step.Collection)
		if err != nil {
			return cr, fmt.Errorf("read %s: %w", step.Collection, err)
		}
		if err := p.push(ctx, step.Collection, 0, records); err != nil {
			return cr, err
		}
		cr.Actions++
		cr.Records += len(records)
		return cr, nil
	}

	// A page shorter than chunkSize, possibly empty, is the last one. It is
	// still pushed so every chunked collection produces at least one action.
	for offset := 0; ; offset += p.chunkSize {
		records, err := r.FindPage(ctx, step.Collection, offset, p.chunkSize)
		if err != nil {
			return cr, fmt.Errorf("read %s at offset %d: %w", step.Collection, offset, err)
		}
		if err := p.push(ctx, step.Collection, offset, records); err != nil {
			return cr, err
		}
		cr.Actions++
		cr.Records += len(records)

		if len(records) < p.chunkSize {
			return cr, nil
		}
	}
}

func (p *Preparer) push(ctx context.Context, collection string, offset int, records []database.Record) error {
	if err := p.enqueue(ctx, tasks.PushObject(collection, records)); err != nil {
		return fmt.Errorf("enqueue %s at offset %d: %w", collection, offset, err)
	}
	if p.observer != nil {
		p.observer.OnBatch(collection, offset, len(records))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
