// Package gitinfo resolves the repository revision of a working
// directory so replayed transcripts can be annotated with the code
// they ran against.
package gitinfo

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// Revision identifies the repository state a replay ran against.
type Revision struct {
	Branch string
	Commit string
	Dirty  bool
}

// Describe resolves the HEAD branch and short commit of the repository
// containing dir, plus whether the worktree carries uncommitted
// changes. The search walks parent directories the way the git CLI
// does. A missing repository or any resolution failure yields the zero
// Revision; callers never see an error.
func Describe(dir string) Revision {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Revision{}
	}

	head, err := repo.Head()
	if err != nil {
		// Unborn HEAD (fresh init) or bare repo.
		return Revision{}
	}

	rev := Revision{Commit: shortHash(head.Hash().String())}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	} else {
		rev.Branch = "detached"
	}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			rev.Dirty = !status.IsClean()
		}
	}

	return rev
}

// Annotation renders the revision as "branch@commit", with a "-dirty"
// suffix when the worktree has uncommitted changes. The zero Revision
// renders as the empty string.
func (r Revision) Annotation() string {
	if r.Commit == "" {
		return ""
	}
	out := fmt.Sprintf("%s@%s", r.Branch, r.Commit)
	if r.Dirty {
		out += "-dirty"
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
