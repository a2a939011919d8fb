// Package model defines the core data structures used throughout crawlerWhipAI.
//
// This package contains the following main types:
//   - LinkNode: A single discovered page in the crawl tree
//   - LinkGraph: The full crawl result (tree + cross-edges + node arena)
//   - FetchResult: The outcome of one fetch adapter call
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (crawler, database, report) need to use these
// types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
