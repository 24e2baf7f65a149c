// Package redisstore provides Redis-backed xcomm stores.
//
// Store name: "redis"
//
// Layout (all keys share KeyPrefix, default "xcomm:"):
//   - msg:<id>          JSON message document, compare-and-set via WATCH/MULTI
//   - events            stream of every event (XADD, XRANGE)
//   - events:<id>       per-message event stream
//   - listeners         hash of listener id -> JSON listener
//
// Config keys:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - username, password, db, tls, tls_server_name
//   - key_prefix: key namespace (default "xcomm:")
//   - max_len_approx: approximate cap for the global events stream (default 0 = unbounded)
//   - callback_timeout: webhook timeout for listener dispatch (default 10s)
//
// Example builder usage:
//
//	svc, _ := xcomm.NewBuilder().
//	    WithStore(redisstore.StoreName, map[string]any{
//	        "addr":           "localhost:6379",
//	        "key_prefix":     "notify:",
//	        "max_len_approx": int64(1_000_000),
//	    }).
//	    Build()
package redisstore
