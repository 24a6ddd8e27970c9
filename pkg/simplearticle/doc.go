// Package simplearticle provides a reusable library for versioned article
// management: stable article numbers across versions, a single published
// snapshot per article, slug changes resolved into redirect stubs without
// chains, and a denormalized catalog kept in step with the latest version.
//
// It exposes a single Service interface that orchestrates creation, editing,
// publication, unpublication, soft deletion and restoration of articles.
// Persistence is pluggable through the Repository and TransactionManager
// interfaces; a memory and a Postgres implementation are provided under
// subpackages.
//
// Version Strategy
//
// Every save appends a new version row keyed by (Number, Version). Rows are
// never rewritten except for status flips on delete/restore and the
// PublishedAt marker owned by the publishing controller. The "current"
// article is computed: the latest version for editing, the version referenced
// by the PublishedSnapshot for readers.
//
// Redirect Strategy
//
// Redirect stubs share the slug namespace with live articles. A stub always
// points at a terminal slug: targets are resolved before a stub is written and
// stubs pointing at a renamed slug are retargeted in the same step.
package simplearticle
