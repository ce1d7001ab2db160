// Package interfaces holds compile-time checks for the abstractions that
// connect the packages of the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - migration.Store: Runs a callback inside one store transaction (internal/migration/preparer.go)
//   - database.Reader: Reads opaque records from a collection (internal/database/database.go)
//   - onboarding.Counter: Counts the records of a collection (internal/onboarding/service.go)
//
// ## Sync Queue Interfaces
//
//   - onboarding.EnqueuerFactory: Queues actions for one migration attempt
//   - onboarding.Starter: Starts delivering queued actions
//   - http.TaskStatusReader, http.QueueState: Queue state for the API
//
// ## External Service Interfaces
//
//   - cloud.Uploader: Sends actions to the sync backend (internal/cloud/client.go)
//
// # Adding a New Collection
//
// To move another collection to the cloud:
//
//  1. Add the model in internal/entities/collections.go and register it in
//     collectionModels (internal/database/database.go)
//
//  2. Add a step to migration.DefaultPlan:
//
//     {Collection: entities.CollectionNotes}
//
//     Set Chunked for collections that may hold many records.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for examples.
package interfaces
