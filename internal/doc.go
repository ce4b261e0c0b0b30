// Package internal documents the Historia server internals.
//
// The internal tree is organized by responsibility:
// - kg: clients for the Wikidata SPARQL endpoint and the Wikipedia action API
// - domain: normalization, dedup, paged imports and staging review
// - storage: the Postgres repository and schema migrations
// - api: HTTP handlers, middleware and routing for review and imports
// - jobs: the in-process import queue and River workers
// - audit, config, email, metrics, telemetry, validation: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
