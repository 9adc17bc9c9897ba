// Package builder runs a build: migrate, discover, skip what is already
// done, parse the rest on a bounded worker pool and load the results through
// a single writer, checkpointing as it goes.
//
// Parsing is concurrent; loading is not. Results are consumed in discovery
// order, so checkpoint counts are reproducible for the same input tree.
// Cancelling the context is the stop signal: it is checked between files,
// files already being parsed finish, and the session is left in_progress so
// a later Build with Resume picks up where it stopped.
//
// Example:
//
//	b := builder.New(store, logger, nil)
//	res, err := b.Build(ctx, builder.Options{DocsRoot: "docs", Resume: true})
//	if err != nil {
//	    return err
//	}
//	if res.Outcome == builder.Stopped {
//	    fmt.Println("stopped; run again with --resume")
//	}
package builder
