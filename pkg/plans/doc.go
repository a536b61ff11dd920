// Package plans defines the immutable plan catalog consumed by the
// subscription lifecycle engine.
//
// A Plan bundles pricing, duration, grace period, and a set of Feature
// definitions. Plans are addressed by their (code, tag) pair: the tag
// partitions independent subscription tracks (e.g. "default" vs "sms"), and
// the code identifies an offer within a tag. Plans are read-only to the rest
// of the system; a price change is a new plan version.
//
// # Features
//
// Features come in two types. FeatureTypeLimit features are metered: the
// consumption engine counts usage against Limit, where any negative limit
// (canonically the Unlimited sentinel, -1) means consumption is tracked but
// never capped. FeatureTypeBoolean features are plain capability toggles and
// cannot be consumed.
//
// # Catalogs
//
// The Catalog interface is the engine's read-only lookup contract. Two
// implementations ship with the package:
//
//	catalog, err := plans.NewInMemCatalog(defs)    // from code
//	catalog, err := plans.NewYAMLCatalog("plans.yml") // from a config file
//
// Both validate definitions on construction and assign deterministic IDs
// (derived from the code/tag identity) to plans that do not carry one, so a
// reloaded catalog keeps stable plan references.
package plans
