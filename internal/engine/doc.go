// Package engine implements the crudkit procedure router.
//
// A procedure is a name ("product.create", "habit.streak") bound to a
// handler. Invoke looks the name up, runs the handler and maps any failure
// onto the four-code error taxonomy in errors.go.
//
// REQUEST PIPELINE:
//
// 1. Validate: schema.Validate / schema.ValidateQuery canonicalise the input
// 2. Persist or query: store.Store, inside WithTx for paired writes
// 3. Coerce: Record/Records decode storage-native rows into ir values
// 4. Respond: the handler's ir.IRValue is returned to the transport
//
// The engine keeps no state between calls. Every call gets a request ID
// (UUIDv7 unless the context already carries one) that appears on each
// log line for that call.
//
// Generic procedures come from RegisterCRUD:
//
//	<entity>.create  {field: value, ..., <link>_ids?: [id]}  -> record
//	<entity>.list    {filter?, order_by?, limit?, offset?}   -> [record]
//	<entity>.get     {id}                                     -> record
//	<entity>.update  {id, field?: value, <link>_ids?: [id]}   -> record
//	<entity>.delete  {id}                                     -> {deleted: bool}
//
// Domain procedures live in internal/apps and register themselves with
// Register.
package engine
