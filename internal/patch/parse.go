package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Op is the role of one hunk line.
type Op byte

const (
	OpContext Op = ' '
	OpAdd     Op = '+'
	OpRemove  Op = '-'
)

// Line is one body line of a hunk, without its prefix.
type Line struct {
	Op   Op
	Text string
}

// Hunk is one parsed hunk. Start values are 1-based as in the header.
type Hunk struct {
	Index    int
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Section  string
	Lines    []Line

	// Anchored is false when the header carried no usable line numbers; such
	// hunks are located by content alone.
	Anchored bool
}

// source returns the context and removed lines, the text the hunk expects to find.
func (h *Hunk) source() []string {
	out := make([]string, 0, h.OldLines)
	for _, l := range h.Lines {
		if l.Op != OpAdd {
			out = append(out, l.Text)
		}
	}
	return out
}

func (h *Hunk) counts() (added, removed int) {
	for _, l := range h.Lines {
		switch l.Op {
		case OpAdd:
			added++
		case OpRemove:
			removed++
		}
	}
	return added, removed
}

var headerRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

type rawHunk struct {
	header  string
	body    []string
	ordinal int

	// declared holds the header's own line counts, when it has any.
	declared          bool
	declOld, declNew int
}

func newRawHunk(header string, ordinal int) rawHunk {
	r := rawHunk{header: header, ordinal: ordinal}
	if m := headerRe.FindStringSubmatch(strings.TrimRight(header, " \t")); m != nil {
		r.declared = true
		r.declOld, r.declNew = headerCount(m[2]), headerCount(m[4])
	}
	return r
}

func headerCount(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

// open reports whether the header's counts still expect more body lines.
func (r *rawHunk) open() bool {
	if !r.declared {
		return false
	}
	oldLines, newLines := bodyCounts(r.body)
	return oldLines < r.declOld || newLines < r.declNew
}

// trimTrailingBlanks drops blank lines at the end of the body that the header
// does not account for. Without counts every trailing blank line goes.
func (r *rawHunk) trimTrailingBlanks() {
	for n := len(r.body); n > 0 && r.body[n-1] == ""; n = len(r.body) {
		if r.declared {
			oldLines, newLines := bodyCounts(r.body[:n-1])
			if oldLines < r.declOld || newLines < r.declNew {
				return
			}
		}
		r.body = r.body[:n-1]
	}
}

func bodyCounts(body []string) (oldLines, newLines int) {
	for _, l := range body {
		switch {
		case l == "" || l[0] == ' ':
			oldLines++
			newLines++
		case l[0] == '-':
			oldLines++
		case l[0] == '+':
			newLines++
		}
	}
	return oldLines, newLines
}

// Parse splits a unified diff for a single file into hunks.
//
// Text before the first "@@" (file headers, prose) is ignored. Header counts
// are recomputed from the body because hand-written diffs rarely get them
// right; headers without numbers produce un-anchored hunks.
func Parse(text string) ([]Hunk, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	first := -1
	for i, l := range lines {
		if strings.HasPrefix(l, "@@") {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, apperrors.NewBuilder(apperrors.CodeInvalidDiff, "diff contains no hunks").
			User().WithSuggestion("Hunks start with a header such as '@@ -10,4 +10,5 @@'").Build()
	}
	if targets := countTargets(lines[:first]); targets > 1 {
		return nil, multipleFiles()
	}

	var raws []rawHunk
	for i := first; i < len(lines); i++ {
		l := lines[i]
		if strings.HasPrefix(l, "@@") {
			raws = append(raws, newRawHunk(l, len(raws)+1))
			continue
		}
		cur := &raws[len(raws)-1]
		if isFileBoundary(lines, i, cur.open()) {
			return nil, multipleFiles()
		}
		cur.body = append(cur.body, l)
	}
	for i := range raws {
		raws[i].trimTrailingBlanks()
	}

	var normalized strings.Builder
	anchored := make([]bool, len(raws))
	for i, raw := range raws {
		ok, err := raw.write(&normalized)
		if err != nil {
			return nil, err
		}
		anchored[i] = ok
	}

	parsed, err := diff.ParseHunks([]byte(normalized.String()))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidDiff, "parsing hunks", apperrors.CategoryUser)
	}
	if len(parsed) != len(raws) {
		return nil, apperrors.Newf(apperrors.CodeInvalidDiff, apperrors.CategoryUser,
			"expected %d hunks, parsed %d", len(raws), len(parsed))
	}

	hunks := make([]Hunk, 0, len(parsed))
	for i, p := range parsed {
		h := Hunk{
			Index:    i + 1,
			OldStart: int(p.OrigStartLine),
			OldLines: int(p.OrigLines),
			NewStart: int(p.NewStartLine),
			NewLines: int(p.NewLines),
			Section:  p.Section,
			Anchored: anchored[i],
		}
		body := strings.TrimSuffix(string(p.Body), "\n")
		for _, l := range strings.Split(body, "\n") {
			if l == "" {
				continue
			}
			h.Lines = append(h.Lines, Line{Op: Op(l[0]), Text: l[1:]})
		}
		hunks = append(hunks, h)
	}
	return hunks, nil
}

// write emits the hunk with a recomputed header and a normalized body, and
// reports whether the original header carried line numbers.
func (r rawHunk) write(sb *strings.Builder) (bool, error) {
	var body []string
	oldLines, newLines := 0, 0
	for _, l := range r.body {
		switch {
		case l == "":
			l = " "
		case l[0] == '\\':
			continue
		case l[0] != ' ' && l[0] != '+' && l[0] != '-':
			return false, apperrors.NewBuilder(apperrors.CodeInvalidDiff,
				fmt.Sprintf("hunk %d: line %q has no ' ', '+' or '-' prefix", r.ordinal, l)).
				User().WithContext("hunk", r.ordinal).WithContext("line", l).
				WithSuggestion("Prefix unchanged lines with a single space").Build()
		}
		switch l[0] {
		case ' ':
			oldLines++
			newLines++
		case '+':
			newLines++
		case '-':
			oldLines++
		}
		body = append(body, l)
	}
	if len(body) == 0 {
		return false, apperrors.Newf(apperrors.CodeInvalidDiff, apperrors.CategoryUser, "hunk %d is empty", r.ordinal)
	}

	oldStart, newStart, section, anchored := 1, 1, "", false
	if m := headerRe.FindStringSubmatch(strings.TrimRight(r.header, " \t")); m != nil {
		oldStart, _ = strconv.Atoi(m[1])
		newStart, _ = strconv.Atoi(m[3])
		section = m[5]
		anchored = true
	} else if i := strings.Index(r.header[2:], "@@"); i >= 0 {
		section = r.header[2+i+2:]
	}
	if oldLines == 0 && !anchored {
		oldStart = 0
	}

	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@%s\n", oldStart, oldLines, newStart, newLines, section)
	for _, l := range body {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return anchored, nil
}

// countTargets counts "+++ " file headers.
func countTargets(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "+++ ") {
			n++
		}
	}
	return n
}

// isFileBoundary reports whether lines[i] starts the header of another file.
// A "--- "/"+++ " pair is a removed and an added line while the hunk header
// still expects body lines, and a file header only when a hunk follows it.
func isFileBoundary(lines []string, i int, inBody bool) bool {
	l := lines[i]
	if strings.HasPrefix(l, "diff --git ") || strings.HasPrefix(l, "Index: ") {
		return true
	}
	if inBody || !strings.HasPrefix(l, "--- ") {
		return false
	}
	return i+2 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") && strings.HasPrefix(lines[i+2], "@@")
}

func multipleFiles() error {
	return apperrors.NewBuilder(apperrors.CodeInvalidDiff, "diff modifies more than one file").
		User().WithSuggestion("Send one edit_file call per file").Build()
}
