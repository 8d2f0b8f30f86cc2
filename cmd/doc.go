// Package cmd implements the command-line interface of kvgate. It provides a
// hierarchical command structure for running the server and talking to it as
// a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts the kvgate server (store, admission control, transport)
//   - kv: client commands (store, retrieve) and the load generator
//   - util: shared flag, config and transport helpers (internal use)
//
// All flags can also be set as environment variables with the prefix KVGATE_,
// dashes replaced by underscores (e.g. --db-url becomes KVGATE_DB_URL).
// Variables from .env and .env.local in the working directory are loaded first.
//
// See kvgate -help for a list of all commands.
package cmd
