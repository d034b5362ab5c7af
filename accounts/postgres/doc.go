// Package postgres implements goGate.AccountDirectory over the private.users
// table using database/sql and lib/pq.
//
// Only the columns the engine needs are read. Password hashes leave this
// package solely inside goGate.Account values; they are never logged.
package postgres
