// Package database provides the local store for the application.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup, migrations, collection reads
//	├── txcontext.go     # Passing the open *sql.Tx to other writers
//	├── sync/            # Sync progress tracking
//	└── settings/        # Application settings
//
// Every collection (pages, visits, annotations, ...) is a table named after
// the collection. Database exposes them as opaque records through Reader,
// with whole-table and offset/limit reads, and runs multi-table work through
// Transaction.
//
// # Transactions
//
// Transaction hands its callback a Reader limited to the tables it was
// given and a context carrying the *sql.Tx. The task queue shares the
// same sqlite file, so tasks enqueued with that context commit or roll back
// together with the rest of the transaction:
//
//	err := db.Transaction(ctx, tables, func(ctx context.Context, r database.Reader) error {
//		records, err := r.FindPage(ctx, "pages", 0, 500)
//		if err != nil {
//			return err
//		}
//		return queue.Enqueue(ctx, tasks.PushObject("pages", records))
//	})
//
// # Adding a New Collection
//
//  1. Add the entity with a TableName() returning the collection name
//  2. Register it in collectionModels
//  3. Add it to the migration plan if it should be pushed to the cloud
package database
