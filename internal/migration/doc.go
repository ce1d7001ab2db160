// Package migration prepares the local collections for upload to the cloud.
//
// A Preparer walks a Plan, reads every collection from the local store and
// enqueues one push-object action per batch. Large, append-mostly
// collections (pages, visits) are read in pages of DefaultChunkSize records;
// everything else is read in one go.
//
// # Ordering
//
// Actions are enqueued strictly in plan order, and page by page within a
// chunked collection. The backend applies pushes in the order it receives
// them and later collections refer to earlier ones (annotations point at
// pages, list entries at lists), so the order is part of the contract.
//
// # Atomicity
//
// The whole walk happens inside one store transaction. The first read or
// enqueue error aborts it and is returned to the caller. When the queue
// lives in the same database (tasks.Client) the queued actions are rolled
// back as well, so a failed attempt leaves nothing behind.
//
// The Preparer keeps no state between calls. Remembering that an attempt
// succeeded is the caller's job (see the onboarding package).
//
// # Usage
//
//	preparer := migration.NewPreparer(db, queue.Enqueuer(attemptID))
//	result, err := preparer.Prepare(ctx)
package migration
