// Package domain defines the core domain types and interfaces.
//
// Users own exactly one Container holding their projects and each project's tasks.
// The nested update rules live on Container so every store backend applies them the
// same way. Repository interfaces are declared here, on the consumer side.
package domain
