// Package app provides the application service layer.
//
// Orchestrates use cases: user registration with container seeding, container reads,
// and the project/task mutations. Sits between HTTP handlers and domain repositories.
// Depends on domain interfaces, not concrete implementations.
package app
