// Package settings provides the hierarchical settings dispatch engine.
//
// Settings are stored as flat key/value pairs under slash-delimited names
// ("bt/a/b/c"). At load time every stored key is routed to the most specific
// registered handler, so independent subsystems can own disjoint or nested
// parts of the namespace without agreeing on a hierarchy in advance.
//
// Components:
//
//   - Name matching: NameSteq and NameNext compare names on segment
//     boundaries and never allocate.
//   - Registry: the set of named handlers; longest matching name wins.
//   - Loader: enumerates a Source and dispatches entries to handlers
//     (LoadAll, LoadSubtree) or to a caller callback (LoadSubtreeDirect),
//     then commits every handler that received at least one value.
//
// Loads are synchronous and run to completion. The registry carries no
// lock: callers must not register or deregister handlers while a load is
// in progress.
//
// Usage:
//
//	reg := settings.NewRegistry()
//	_ = reg.Register(&settings.Handler{Name: "net/wifi", Set: wifiSet, Commit: wifiCommit})
//	loader := settings.NewLoader(reg, store)
//	if err := loader.LoadAll(ctx); err != nil {
//		// inspect *settings.LoadError
//	}
package settings
