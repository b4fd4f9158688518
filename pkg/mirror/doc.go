// Package mirror copies the closure of a set of store objects from a Nix
// binary cache into a local directory.
//
// Two types do the work:
//
//   - [Resolver] handles one package identifier: it makes sure the
//     identifier's narinfo document and the content blob it points at exist
//     in the mirror, downloading and verifying whatever is missing, and
//     returns the identifiers the document references.
//   - [Scheduler] walks the reference graph from the roots in waves. Each
//     wave resolves every identifier of the current frontier with at most
//     Options.Parallelism resolutions in flight; references not seen before
//     form the next frontier. The run ends when a wave discovers nothing new,
//     or on the first error.
//
// # Mirror layout
//
//	{root}/{id}.narinfo    metadata documents
//	{root}/{URL}           content blobs, usually {root}/nar/...
//
// Because every file is made visible by an atomic rename after it has been
// verified, an interrupted run can simply be started again: files already
// present are skipped.
//
// # Example
//
//	layout := mirror.NewLayout("/srv/nix-mirror")
//	remote := mirror.NewRemote("https://cache.nixos.org")
//	resolver := mirror.NewResolver(layout, remote, fetch.New(nil, nil))
//
//	report, err := mirror.NewScheduler(resolver, mirror.Options{Parallelism: 8}).
//	    Run(ctx, []string{"0001w2k3pgl0pkrn827dxiibvc2sibnd"})
package mirror
