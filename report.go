package depth

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// findingDedupPrefix is the content-prefix length hashed to deduplicate
// findings before reference IDs are assigned.
const findingDedupPrefix = 100

// maxReportRetries bounds token-limit truncation retries during synthesis.
const maxReportRetries = 3

// tokenCharRatio approximates characters per token when sizing the findings
// window from a model's token limit.
const tokenCharRatio = 4

const reportPrompt = `Write the final research report answering the brief below, using only the numbered findings provided. Cite findings inline as [N] where N is the finding number. Use markdown headings. Do not write a references section; it is appended automatically.`

// reportSynthesizer compiles all session findings into the final cited
// report.
type reportSynthesizer struct {
	provider Provider
	logger   *slog.Logger
	tracer   Tracer
}

// synthesize produces the report and its ordered references. On token-limit
// errors it retries with a progressively smaller findings window: first
// tokenLimit×4 characters, then 10% less each attempt. After three failed
// retries it returns a terminal human-readable error report rather than an
// error — unless the model's token limit is unknown, in which case
// truncation is impossible and it fails immediately.
func (r *reportSynthesizer) synthesize(ctx context.Context, brief string, findings []Finding) (string, []string, Usage, error) {
	var usage Usage

	synthCtx := ctx
	if r.tracer != nil {
		var span Span
		synthCtx, span = r.tracer.Start(ctx, "report.synthesize",
			IntAttr("findings", len(findings)))
		defer span.End()
	}

	findingsText := formatFindings(findings)
	charBudget := 0

	for attempt := 0; attempt <= maxReportRetries; attempt++ {
		text := findingsText
		if charBudget > 0 {
			text = truncateStr(text, charBudget)
		}

		resp, err := r.provider.Chat(synthCtx, ChatRequest{Messages: []ChatMessage{
			SystemMessage(reportPrompt),
			UserMessage(fmt.Sprintf("Research brief:\n%s\n\nFindings:\n%s", brief, text)),
		}})
		usage.Add(resp.Usage)
		if err == nil {
			report, refs := normalizeCitations(resp.Content, findings)
			return report, refs, usage, nil
		}
		if !IsTokenLimit(err) {
			return "", nil, usage, err
		}

		if charBudget == 0 {
			limit := r.provider.TokenLimit()
			if limit <= 0 {
				return "", nil, usage, &ErrLLM{
					Provider: r.provider.Name(),
					Message:  "report exceeded the model context window and the model's token limit is unknown, so findings cannot be truncated",
				}
			}
			charBudget = limit * tokenCharRatio
		} else {
			charBudget = charBudget * 9 / 10
		}
		r.logger.Warn("report synthesis hit token limit, truncating findings",
			"attempt", attempt+1, "char_budget", charBudget)
	}

	r.logger.Error("report synthesis failed after truncation retries", "retries", maxReportRetries)
	return fmt.Sprintf(
		"# Report Generation Failed\n\nThe research completed, but the final report could not be generated: the findings exceeded the model's context window even after %d truncation retries. The %d collected findings are preserved in the session result.",
		maxReportRetries, len(findings)), nil, usage, nil
}

// dedupFindings assigns stable sequential reference IDs to notes,
// deduplicating by a hash of each note's content prefix. IDs exist only from
// this point on — notes carry no identity during research.
func dedupFindings(notes []string) []Finding {
	seen := make(map[uint64]struct{}, len(notes))
	findings := make([]Finding, 0, len(notes))
	for _, n := range notes {
		if strings.TrimSpace(n) == "" {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(truncateStr(n, findingDedupPrefix)))
		key := h.Sum64()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		findings = append(findings, Finding{ID: len(findings) + 1, Text: n})
	}
	return findings
}

func formatFindings(findings []Finding) string {
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "[%d] %s\n\n", f.ID, f.Text)
	}
	return b.String()
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// normalizeCitations rewrites inline [N] citations so references number 1..M
// without gaps, in the order first referenced, and returns the reference list
// resolved against the findings. Citations of unknown finding IDs are left
// renumbered with a placeholder reference.
func normalizeCitations(report string, findings []Finding) (string, []string) {
	byID := make(map[int]Finding, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
	}

	order := make(map[int]int) // old id → new id
	var refs []string
	body := citationRe.ReplaceAllStringFunc(report, func(m string) string {
		var old int
		fmt.Sscanf(m, "[%d]", &old)
		newID, ok := order[old]
		if !ok {
			newID = len(order) + 1
			order[old] = newID
			if f, found := byID[old]; found {
				refs = append(refs, referenceLine(f))
			} else {
				refs = append(refs, fmt.Sprintf("Source %d", old))
			}
		}
		return fmt.Sprintf("[%d]", newID)
	})

	if len(refs) == 0 {
		return strings.TrimSpace(body), nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n## References\n\n")
	for i, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, ref)
	}
	return b.String(), refs
}

// referenceLine condenses a finding into a one-line reference entry.
func referenceLine(f Finding) string {
	line := strings.TrimSpace(f.Text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const maxRefLen = 160
	if len([]rune(line)) > maxRefLen {
		line = truncateStr(line, maxRefLen) + "..."
	}
	return line
}

// RenderHTML converts a markdown report to HTML for chat-UI consumers.
// GFM tables and strikethrough are enabled; autolinking covers bare URLs in
// references.
func RenderHTML(report string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf strings.Builder
	if err := md.Convert([]byte(report), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
