// Package postgres implements the xcomm stores on PostgreSQL through pgx.
//
// Messages are kept as JSONB documents next to their state and version
// columns so Save can compare-and-swap in a single UPDATE. Events are an
// append-only table ordered by a BIGSERIAL sequence. Listeners are plain rows.
//
// Registry name: "postgres". Config keys: dsn, max_conns, migrate, callback_timeout.
package postgres
