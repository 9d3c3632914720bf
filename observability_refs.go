package manager

import (
	"reflect"
	"sync"
)

// Managers built from the same options share one observability client, so
// the singleton replacing a manager must not shut down a client the new one
// is still reporting to. The first logger to acquire a client initializes it
// and the last one to release it shuts it down.
var observabilityRefs = struct {
	sync.Mutex
	counts map[IObservabilityClient]int
}{counts: make(map[IObservabilityClient]int)}

// acquireObservabilityClient reports whether client needs Init
func acquireObservabilityClient(client IObservabilityClient) bool {
	if !reflect.TypeOf(client).Comparable() {
		return true
	}
	observabilityRefs.Lock()
	defer observabilityRefs.Unlock()
	observabilityRefs.counts[client]++
	return observabilityRefs.counts[client] == 1
}

// releaseObservabilityClient reports whether client needs Shutdown
func releaseObservabilityClient(client IObservabilityClient) bool {
	if !reflect.TypeOf(client).Comparable() {
		return true
	}
	observabilityRefs.Lock()
	defer observabilityRefs.Unlock()
	n, ok := observabilityRefs.counts[client]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(observabilityRefs.counts, client)
		return true
	}
	observabilityRefs.counts[client] = n - 1
	return false
}
