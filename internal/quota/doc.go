// Package quota provides the process-wide quota event bus.
//
// The store publishes on the bus whenever the storage medium rejects a write
// for capacity reasons. Front ends subscribe to show a warning:
//
//	bus := quota.NewBus(logger)
//	unsubscribe := bus.Subscribe(func() {
//		fmt.Fprintln(os.Stderr, "storage is full, free some space")
//	})
//	defer unsubscribe()
//
// Notifications carry no payload and are not replayed to late subscribers.
// The bus is injected into the store at construction rather than living in a
// package variable, so tests can observe it in isolation.
package quota
