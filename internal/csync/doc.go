// Package csync provides thread-safe concurrent data structures.
//
// This package implements generic, thread-safe versions of common Go data structures
// like maps and slices. All operations are protected by read-write mutexes to ensure
// safe concurrent access from multiple goroutines.
//
// The collections also implement JSON marshaling/unmarshaling for persistence
// and provide rich APIs with functional programming patterns.
//
// Example usage:
//
//	// Thread-safe map
//	tabs := csync.NewMap[string, *TabState]()
//	tabs.Set("7", state)
//	if state, exists := tabs.Get("7"); exists {
//		// Use tab state safely
//	}
//
//	// Thread-safe slice
//	log := csync.NewSlice[Progress]()
//	log.Append(p1, p2)
//	log.Range(func(i int, p Progress) bool {
//		fmt.Printf("event %d: %s\n", i, p.Phase)
//		return true // Continue iteration
//	})
//
// All operations are thread-safe and can be called concurrently from multiple
// goroutines without additional synchronization.
package csync
