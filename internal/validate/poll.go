// Package validate turns raw poll submissions into normalized drafts.
package validate

import (
	"strings"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
)

// MinOptions is the smallest number of non-empty options a poll may have.
const MinOptions = 2

// Poll normalizes form input where options arrive as a newline-delimited blob.
func Poll(title, description, optionsBlob string) (model.PollDraft, error) {
	return PollLines(title, description, SplitOptions(optionsBlob))
}

// PollLines normalizes input where options arrive already split (JSON arrays).
// Each entry is still split on line breaks so a pasted blob inside a single
// array element behaves like the form.
func PollLines(title, description string, options []string) (model.PollDraft, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return model.PollDraft{}, errs.ErrMissingTitle
	}

	opts := make([]string, 0, len(options))
	for _, o := range options {
		opts = append(opts, SplitOptions(o)...)
	}
	if len(opts) < MinOptions {
		return model.PollDraft{}, errs.ErrInsufficientOptions
	}

	return model.PollDraft{
		Title:       t,
		Description: Description(description),
		Options:     opts,
	}, nil
}

// Description trims s and maps the empty result to nil.
func Description(s string) *string {
	d := strings.TrimSpace(s)
	if d == "" {
		return nil
	}
	return &d
}

// SplitOptions splits on \n (tolerating \r\n), trims and drops empty lines.
// Order is preserved and duplicates are kept.
func SplitOptions(blob string) []string {
	lines := strings.Split(blob, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimSuffix(l, "\r"))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
