// SPDX-License-Identifier: MPL-2.0

// Package stepfile defines provisioning steps and the stepfile document that
// declares them.
//
// A stepfile is an ordered list of steps plus two optional settings: the base
// image (used only when rendering a Containerfile) and the initial working
// directory. Stepfiles are written in CUE and validated against an embedded
// schema; YAML and TOML encodings of the same document are accepted too:
//
//	base:    "python:3.12-slim"
//	workdir: "/workspace"
//	steps: [
//		{kind: "install-system-packages", packages: ["git", "curl"]},
//		{kind: "install-package-manager", tool: "uv"},
//		{kind: "copy-files", source: "./src/requirements.txt", dest: "requirements.txt"},
//		{kind: "run-command", command: "uv pip install --system -r requirements.txt"},
//	]
//
// Steps are immutable values. ValidateSteps checks every step up front so a
// malformed stepfile is rejected before anything runs.
package stepfile
