package patch

import (
	"fmt"
	"strings"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// DefaultMaxDrift bounds how far an anchored hunk may move from its header position.
const DefaultMaxDrift = 200

// Options tune hunk matching.
type Options struct {
	// MaxDrift is the largest accepted distance, in lines, between the
	// position a header names and the position the hunk is found at.
	MaxDrift int

	// IgnoreWhitespace compares lines with runs of whitespace collapsed.
	IgnoreWhitespace bool
}

// HunkReport records where a hunk was applied.
type HunkReport struct {
	Index     int `json:"index"`
	OldStart  int `json:"old_start"`
	AppliedAt int `json:"applied_at"`
	Offset    int `json:"offset"`
	Added     int `json:"added"`
	Removed   int `json:"removed"`
}

// Outcome summarizes a successful patch.
type Outcome struct {
	Path         string       `json:"path,omitempty"`
	Created      bool         `json:"created,omitempty"`
	HunksApplied int          `json:"hunks_applied"`
	LinesAdded   int          `json:"lines_added"`
	LinesRemoved int          `json:"lines_removed"`
	Hunks        []HunkReport `json:"hunks"`
}

// document is file content split into lines with its line-ending style remembered.
type document struct {
	lines       []string
	eol         string
	trailingEOL bool
}

func splitDocument(content string) document {
	doc := document{eol: "\n"}
	if strings.Contains(content, "\r\n") {
		doc.eol = "\r\n"
	}
	if content == "" {
		return doc
	}
	doc.trailingEOL = strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	doc.lines = strings.Split(content, "\n")
	for i, l := range doc.lines {
		doc.lines[i] = strings.TrimSuffix(l, "\r")
	}
	return doc
}

func (d document) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	out := strings.Join(d.lines, d.eol)
	if d.trailingEOL {
		out += d.eol
	}
	return out
}

// Apply patches content in memory. Either every hunk applies or an error is
// returned and content is unchanged.
func Apply(content, diffText string, opts Options) (string, *Outcome, error) {
	hunks, err := Parse(diffText)
	if err != nil {
		return "", nil, err
	}
	return applyHunks(content, hunks, opts)
}

func applyHunks(content string, hunks []Hunk, opts Options) (string, *Outcome, error) {
	if opts.MaxDrift <= 0 {
		opts.MaxDrift = DefaultMaxDrift
	}
	m := matcher{ignoreWhitespace: opts.IgnoreWhitespace}

	doc := splitDocument(content)
	if len(doc.lines) == 0 {
		// New or empty files end with a newline once something is added.
		doc.trailingEOL = true
	}

	positions := make([]int, len(hunks))
	outcome := &Outcome{Hunks: make([]HunkReport, 0, len(hunks))}
	drift, floor := 0, 0
	for i := range hunks {
		h := &hunks[i]
		src := h.source()

		var pos int
		if len(src) == 0 {
			pos = insertionPoint(h, drift, floor, len(doc.lines))
		} else {
			expected := floor
			limit := -1
			if h.Anchored {
				expected = h.OldStart - 1 + drift
				limit = opts.MaxDrift
			}
			found, ok := m.locate(doc.lines, src, expected, floor, limit)
			if !ok {
				return "", nil, m.mismatch(h, doc.lines, src, expected, floor)
			}
			pos = found
		}

		offset := 0
		if h.Anchored {
			base := h.OldStart - 1
			if len(src) == 0 {
				base = h.OldStart
			}
			offset = pos - base
			drift = offset
		}
		positions[i] = pos
		floor = pos + len(src)

		added, removed := h.counts()
		outcome.Hunks = append(outcome.Hunks, HunkReport{
			Index:     h.Index,
			OldStart:  h.OldStart,
			AppliedAt: pos + 1,
			Offset:    offset,
			Added:     added,
			Removed:   removed,
		})
		outcome.LinesAdded += added
		outcome.LinesRemoved += removed
	}
	outcome.HunksApplied = len(hunks)

	out := make([]string, 0, len(doc.lines)+outcome.LinesAdded)
	cursor := 0
	for i := range hunks {
		pos := positions[i]
		out = append(out, doc.lines[cursor:pos]...)
		k := pos
		for _, l := range hunks[i].Lines {
			switch l.Op {
			case OpContext:
				out = append(out, doc.lines[k])
				k++
			case OpRemove:
				k++
			case OpAdd:
				out = append(out, l.Text)
			}
		}
		cursor = k
	}
	out = append(out, doc.lines[cursor:]...)
	doc.lines = out

	return doc.String(), outcome, nil
}

// insertionPoint places a hunk without context or removed lines. Headers
// say "-N,0" for an insertion after line N; un-anchored ones append.
func insertionPoint(h *Hunk, drift, floor, n int) int {
	pos := n
	if h.Anchored {
		pos = h.OldStart + drift
	}
	return max(floor, min(pos, n))
}

type matcher struct {
	ignoreWhitespace bool
}

func (m matcher) equal(a, b string) bool {
	if a == b {
		return true
	}
	if !m.ignoreWhitespace {
		return false
	}
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

func (m matcher) matchesAt(lines, src []string, pos int) bool {
	if pos < 0 || pos+len(src) > len(lines) {
		return false
	}
	for i, s := range src {
		if !m.equal(lines[pos+i], s) {
			return false
		}
	}
	return true
}

// locate searches outward from expected for a contiguous match starting no
// earlier than floor. A negative limit searches the whole file.
func (m matcher) locate(lines, src []string, expected, floor, limit int) (int, bool) {
	last := len(lines) - len(src)
	if last < floor {
		return 0, false
	}
	expected = max(floor, min(expected, last))

	for d := 0; ; d++ {
		if limit >= 0 && d > limit {
			return 0, false
		}
		below, above := expected+d, expected-d
		if below > last && above < floor {
			return 0, false
		}
		if below <= last && m.matchesAt(lines, src, below) {
			return below, true
		}
		if d > 0 && above >= floor && m.matchesAt(lines, src, above) {
			return above, true
		}
	}
}

// mismatch builds the HUNK_MISMATCH error, quoting the window of the file that
// shares the most lines with what the hunk expected.
func (m matcher) mismatch(h *Hunk, lines, src []string, expected, floor int) error {
	best, bestScore := -1, -1
	for pos := floor; pos < len(lines); pos++ {
		score := 0
		for i, s := range src {
			if pos+i < len(lines) && m.equal(lines[pos+i], s) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && abs(pos-expected) < abs(best-expected)) {
			best, bestScore = pos, score
		}
	}

	var actual []string
	line := 0
	if best >= 0 {
		end := min(best+len(src), len(lines))
		actual = append([]string{}, lines[best:end]...)
		line = best + 1
	}

	msg := fmt.Sprintf("hunk %d does not match the file", h.Index)
	if line > 0 {
		msg = fmt.Sprintf("hunk %d does not match the file; closest text starts at line %d", h.Index, line)
	}
	return apperrors.NewBuilder(apperrors.CodeHunkMismatch, msg).
		User().
		WithContext("hunk", h.Index).
		WithContext("expected", src).
		WithContext("actual", actual).
		WithContext("line", line).
		WithSuggestion("Read the file again and regenerate the diff against its current content").
		Build()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
