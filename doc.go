// Package firekit is the composition root of the firekit library.
//
// firekit maps plain Go structs onto a document store. An entity type names
// its collection and exposes its document key; the typed layer handles
// encoding, id allocation, merge writes, filtered queries and realtime
// listeners on top of a small core.Store interface.
//
// Store adapters:
//
//   - memory: in-process maps, for tests and prototypes.
//   - fs: one directory per collection, one JSON or YAML file per document,
//     optional git commit per write, fsnotify based change detection.
//   - sqlite: a single database file (pure Go driver).
//   - firestore: Google Cloud Firestore, including the local emulator.
//
// Usage:
//
//	store, err := firekit.Open(ctx, "./data", firekit.WithAdapter("fs"))
//	if err != nil {
//		return err
//	}
//	expenses := firekit.NewManager[Expense](store)
//	id, err := expenses.Save(ctx, Expense{Title: "Coffee", Amount: 3.5})
//
//	l, err := firekit.NewListener(ctx, expenses, firekit.Where("amount", firekit.OpGreater, 10))
//	defer l.Release()
package firekit
