// Package harness runs YAML scenarios against a real engine and compares
// the resulting traces with golden files.
//
// # Scenario Format
//
//	name: restock_widget
//	description: "Stock movements adjust the product level"
//	specs: ../specs          # optional; default is the embedded catalog
//	setup:
//	  - invoke: product.create
//	    args: { name: Widget, sku: W-1 }
//	flow:
//	  - invoke: stock_movement.record
//	    args: { product_id: 1, type: stock_in, quantity: 5 }
//	    expect:
//	      status: ok
//	      result: { product: { stock_level: 5 } }
//	  - invoke: product.get
//	    args: { id: 99 }
//	    expect: { status: error, code: NOT_FOUND }
//	assertions:
//	  - type: final_state
//	    entity: Product
//	    where: { sku: W-1 }
//	    expect: { stock_level: 5 }
//
// Decimals are compared as strings; write them quoted ("19.90").
//
// # Assertion Types
//
//   - trace_contains: a procedure was invoked with matching args (subset)
//   - trace_order: procedures were invoked in the given order
//   - trace_count: a procedure was invoked exactly N times
//   - final_state: exactly one row of an entity matches where, and has the expected values
//   - row_count: N rows of an entity match where
//
// # Determinism
//
// Each scenario gets a fresh in-memory database, a deterministic clock
// (testutil.DeterministicClock) and sequential request IDs, so traces are
// byte-identical across runs and can be stored as golden files.
package harness
