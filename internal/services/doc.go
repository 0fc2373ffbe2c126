// Package services provides the centralized service registry for stageflowd.
//
// Registry pattern for accessing the core services (workflow manager,
// reference registry, transfer rules, knowledge store). Use NewRegistry()
// to create a registry with service instances, then accessor methods to
// retrieve individual services.
package services
