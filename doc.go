// Package batchworker implements the coordination and durability core of a
// distributed, horizontally-replicated daily batch extraction worker.
//
// Exactly one running instance of a named worker is allowed to write at a
// time. Replicas compete for a time-bounded lease (LeaseStore); the holder
// extracts a relational view page by page (PageReader), fans each page out
// to one or more translated output files (TranslatorRegistry, OutputWriter),
// and records durable progress (ProgressStore) so that a replica which takes
// over after a crash resumes without producing duplicates or gaps. Once
// every configured file reaches the end of the view, each file is finalized
// (footer removed, status transitioned, completion event published) and the
// lease is released.
//
// The package only defines the narrow capability interfaces the Orchestrator
// depends on. Concrete backends live in sibling packages: redislease,
// cassandraprogress, pgreader, fsoutput, kafkapublish, translators.
package batchworker
