// Package crawler holds the domain model of the creative collector: tasks and
// their state machine, platform classification, collection records, and the
// interfaces implemented by stores, queues, media backends and platform
// crawlers. Concrete implementations live in sibling packages so the worker
// and orchestrator depend only on these contracts.
package crawler
