// Package git reads repository identity and working-tree changes by running
// the git command line.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"legacylens/internal/model"
)

// ChangedFile is one file touched by a diff, with the new-side line
// numbers that were added or modified.
type ChangedFile struct {
	Path         string
	ChangedLines []int
}

func run(ctx context.Context, root string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// Describe returns the commit, branch and dirty state of the working tree
// at root. It returns nil without error when root is not inside a
// repository or git is not installed.
func Describe(ctx context.Context, root string) (*model.GitRevision, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, nil
	}
	inside, err := run(ctx, root, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(string(inside)) != "true" {
		return nil, nil
	}
	rev := &model.GitRevision{}
	// a repository without commits has no HEAD yet
	if out, err := run(ctx, root, "rev-parse", "HEAD"); err == nil {
		rev.Commit = strings.TrimSpace(string(out))
	}
	if out, err := run(ctx, root, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		rev.Branch = strings.TrimSpace(string(out))
	}
	status, err := run(ctx, root, "status", "--porcelain")
	if err != nil {
		return rev, err
	}
	rev.Dirty = len(bytes.TrimSpace(status)) > 0
	return rev, nil
}

// ChangedFiles runs git diff against baseRef in root and returns the
// changed files with line numbers, relative to root.
func ChangedFiles(ctx context.Context, root, baseRef string) ([]ChangedFile, error) {
	output, err := run(ctx, root, "diff", "-U0", "--relative", baseRef)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return parseDiff(output)
}

// chunk header: @@ -oldStart,oldLen +newStart,newLen @@
var chunkHeader = regexp.MustCompile(`^@@ \-\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

func parseDiff(output []byte) ([]ChangedFile, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var changes []ChangedFile
	var currentFile *ChangedFile

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "diff --git") {
			// a/path/to/file b/path/to/file; the b/ side is the new version
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				if currentFile != nil {
					changes = append(changes, *currentFile)
				}
				currentFile = &ChangedFile{Path: strings.TrimPrefix(parts[3], "b/"), ChangedLines: []int{}}
			}
			continue
		}
		if currentFile == nil || !strings.HasPrefix(line, "@@") {
			continue
		}
		matches := chunkHeader.FindStringSubmatch(line)
		if len(matches) < 2 {
			continue
		}
		startLine, _ := strconv.Atoi(matches[1])
		count := 1
		if len(matches) > 2 && matches[2] != "" {
			count, _ = strconv.Atoi(matches[2])
		}
		// pure deletions keep the line they were removed at
		if count == 0 {
			currentFile.ChangedLines = append(currentFile.ChangedLines, startLine)
			continue
		}
		for i := 0; i < count; i++ {
			currentFile.ChangedLines = append(currentFile.ChangedLines, startLine+i)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	if currentFile != nil {
		changes = append(changes, *currentFile)
	}
	return changes, nil
}
