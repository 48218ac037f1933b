// SPDX-License-Identifier: MPL-2.0

// Package provision runs stepfile steps against a target filesystem.
//
// A Provisioner executes an ordered list of steps, one at a time, against a
// BuildContext that carries the working directory and environment produced
// by earlier steps. The first failing step aborts the run; nothing is retried
// and nothing is rolled back.
//
//	p := provision.New(provision.WithLogger(logger))
//	result, err := p.Run(ctx, sf.Steps)
//	// result.State is Succeeded or Failed; err is a *ProvisionError on failure
//
// The same steps can be rendered as a Containerfile with RenderContainerfile.
package provision
