// Package ir provides the logical value model and entity definitions for crudkit.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Monetary and other fixed-point quantities use IRDecimal, never IRFloat
//   - Dates and timestamps are IRTime in UTC; storage encoding lives in coerce
//   - All JSON tags use snake_case
//   - Every entity carries the implicit id/created_at/updated_at columns
package ir
