// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	StepfileNotFoundId Id = iota + 1
	StepfileInvalidId
	MissingPathId
	CommandFailedId
	PackageInstallFailedId
	RunnerUnavailableId
	ContainerEngineNotFoundId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // documentation for this issue type
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal markdown using the glamour style at
// stylePath ("dark", "light", "notty", "auto" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	stepfileNotFoundIssue = &Issue{
		id: StepfileNotFoundId,
		mdMsg: `
# No stepfile found!

stepper looked for a recipe in the current directory and found none.

## Looked for (in order):
1. stepfile.cue
2. stepfile.yaml / stepfile.yml
3. stepfile.toml

## Things you can try:
- Create a starter recipe:
~~~
$ stepper init
~~~

- Or point at an existing file:
~~~
$ stepper run -f path/to/recipe.cue
~~~`,
	}

	stepfileInvalidIssue = &Issue{
		id: StepfileInvalidId,
		mdMsg: `
# The stepfile is invalid!

Every step is checked before the first one runs, so nothing was executed.

## Things you can try:
- Check that each step has a known ` + "`kind`" + ` and only the fields of that kind:

| kind | fields |
|------|--------|
| install-system-packages | packages |
| install-package-manager | tool |
| set-working-directory | path |
| set-environment-variable | name, value |
| copy-files | source, dest |
| run-command | command |

- Validate without running:
~~~
$ stepper validate
~~~`,
	}

	missingPathIssue = &Issue{
		id: MissingPathId,
		mdMsg: `
# A copy source does not exist!

A copy-files step named a path that is not in the source root, or that is
excluded by .stepperignore / .dockerignore.

## Things you can try:
- Check the path is relative to the source root (` + "`--source`" + `, default ` + "`.`" + `)
- Check the ignore file does not exclude it
- Remember that earlier steps do not create files in the source root`,
	}

	commandFailedIssue = &Issue{
		id: CommandFailedId,
		mdMsg: `
# A command exited with an error!

The run stopped at the failing step. Steps before it were not rolled back.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` to see each command as it starts
- Run the command by hand in the same working directory
- Check environment variables set by earlier steps`,
	}

	packageInstallFailedIssue = &Issue{
		id: PackageInstallFailedId,
		mdMsg: `
# Package installation failed!

The OS package source or the package manager installer returned an error.
Installs are not retried.

## Things you can try:
- Check network access to the package index
- Check the package names are spelled correctly for this distribution
- Configure other commands under ` + "`system_packages`" + ` or ` + "`package_manager`" + ` in config.cue`,
	}

	runnerUnavailableIssue = &Issue{
		id: RunnerUnavailableId,
		mdMsg: `
# The command runner is not available!

## Things you can try:
- Use the embedded shell, which needs nothing installed:
~~~
$ stepper run --runner virtual
~~~
- Install bash or sh, or set $SHELL`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine found!

` + "`stepper build`" + ` needs Podman or Docker on PATH.

## Things you can try:
- Install Podman or Docker
- Render the Containerfile only:
~~~
$ stepper dockerfile > Containerfile
~~~`,
		extLinks: []HttpLink{
			"https://podman.io/docs/installation",
			"https://docs.docker.com/engine/install/",
		},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check config.cue syntax
- Show the effective configuration:
~~~
$ stepper config show
~~~
- Check STEPPER_* environment variables`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

Package installs and writes under the destination root usually need root.

## Things you can try:
- Run inside a container, or with sudo
- Provision into a scratch directory:
~~~
$ stepper run --root ./rootfs
~~~`,
	}

	issues = map[Id]*Issue{
		stepfileNotFoundIssue.Id():        stepfileNotFoundIssue,
		stepfileInvalidIssue.Id():         stepfileInvalidIssue,
		missingPathIssue.Id():             missingPathIssue,
		commandFailedIssue.Id():           commandFailedIssue,
		packageInstallFailedIssue.Id():    packageInstallFailedIssue,
		runnerUnavailableIssue.Id():       runnerUnavailableIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	ids := maps.Keys(issues)
	slices.Sort(ids)
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
