// Package core imports ECSV files into PostgreSQL.
//
// The package holds all domain logic independent of the HTTP layer, so the
// web handlers, the CLI and tests share it unchanged.
//
// # Import Flow
//
// Imports stream with memory bounded by the batch size, regardless of file
// size:
//
//  1. Client calls [Service.StartImport] with an io.Reader
//  2. The reader is wrapped by [WrapForStreaming] for byte counting, BOM
//     skipping and UTF-8 sanitization
//  3. The ECSV header is parsed and the target table is created from the
//     declared column types (see [ColumnType]), or checked if it exists
//  4. Each data row is converted with [ConvertRow] and sent with COPY in
//     batches, all in one transaction
//  5. Progress is broadcast to subscribers via [Service.SubscribeProgress]
//
// Every imported row carries the import ID in the import_id column, which is
// what [Service.RollbackImport] deletes by. Imports are recorded in the
// ecsv_imports history table created by [Service.EnsureSchema].
//
// [Service.Inspect] runs the same parse without touching the database.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has its own code prefix:
//
//   - ECSV001-ECSV004: malformed files
//   - IMP001-IMP007: import lifecycle
//   - TBL001-TBL003: target table problems
//   - FILE001-FILE004: upload problems
//   - DB001-DB006: database errors
package core
