// Package queryir provides an abstract query intermediate representation
// shared by every entity.
//
// Handlers never write SQL. They describe reads and writes as QueryIR trees,
// and a backend (internal/querysql) turns them into parameterized SQL:
//
//	[handler] → [Query IR] → [SQL backend]
//
// One builder for all entities means filtering, ordering and pagination
// behave identically everywhere, and identifiers and values are handled in
// exactly one place.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can use
// exhaustive type switches:
//
//	switch q := query.(type) {
//	case queryir.Select:
//	    // Handle select
//	case queryir.Join:
//	    // Handle join
//	default:
//	    // Unknown node
//	}
//
// DETERMINISTIC ORDER:
//
// Every Select and Join compiles to SQL that ends with an id tiebreaker, so
// two rows never compare equal and offset pagination never skips or repeats
// rows.
//
// VALUES:
//
// Literal values are never interpolated. Backends bind them as parameters.
// Identifiers (tables, columns) are checked by Validate before compilation.
package queryir
