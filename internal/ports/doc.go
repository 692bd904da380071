// Package ports defines the interfaces that connect the orchestration layer
// to infrastructure adapters.
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with concrete transports
// (HTTP remote client, zerolog, the local filesystem). This keeps the
// orchestrators testable with fakes and the dependency direction one-way.
package ports
