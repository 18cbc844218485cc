// Package dht implements the Kademlia overlay for the tracklore peer: node
// identifiers and the k-bucket routing table, iterative lookups, the typed
// RPC message set and its correlation machinery, the STORE offer/accept
// protocol, and the three background maintenance loops.
//
// The overlay stores keyword-indexed resource records rather than opaque
// byte blobs; see the repository package for that half of the system. Node
// holds a concrete *repository.Store and calls it directly.
//
// # Architecture
//
// Node orchestrates everything below it:
//
//	node := dht.NewNode(selfID, selfEndpoint, tr, store, "instance-1")
//	node.Start()
//	defer node.Stop()
//
//	node.Put(tag)
//	resources := node.Get("imagine")
//
// A BucketList holds up to K=20 contacts per bucket across 160 buckets,
// indexed by common-prefix length to the local ID. Iterative lookups fan
// out α=3 requests per round via the Transport, correlating responses
// through a ResponseCache keyed by a freshly generated conversation ID.
//
// # Concurrency
//
// Inbound RPCs are dispatched one goroutine per datagram by the transport.
// Every RPC handler first calls SawContact, admitting the sender into the
// routing table through a bounded queue drained by a single admission
// goroutine (MindBuckets) rather than mutating the table directly from
// handler goroutines. MindBuckets ranges directly over that queue; MindCaches
// and MindMaintenance run on independent tickers. All three stop cleanly via
// context cancellation.
package dht
