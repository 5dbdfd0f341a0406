// Package search compiles FHIR search parameter maps into relational queries
// over OMOP CDM tables and returns the matching row identifiers.
//
// A ParameterMap is keyed by parameter name. Each name holds a list of
// AND-groups (one per repeated occurrence in the query string) and each
// AND-group holds OR tokens (the comma separated values of one occurrence).
// The Compiler intersects across names and AND-groups; the predicate builder
// registered for the parameter's type unions the tokens of one OR-group.
//
// SQL syntax that differs between stores (placeholders, date comparison, set
// membership) lives behind the Dialect interface, and queries run through the
// Store interface, so the compiler never depends on a particular driver.
package search
