// Package domain provides the shared entities of the overseer control core.
// These types flow between the scheduler, the billing guard, the executor,
// the self-modification engine and the notification gate.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain
