package window

import (
	"fmt"
	"strings"
)

// Format renders snapshots as the indented dump written to the execution log.
func Format(snapshots []Snapshot) string {
	var b strings.Builder
	for n, s := range snapshots {
		fmt.Fprintf(&b, "[%03d] hwnd=0x%016X class=%s rect=%s title=%q\n",
			n+1, uint64(s.Handle), s.ClassName, formatRect(s.Rect), s.Title)

		if s.TopLevelText != nil && *s.TopLevelText != s.Title {
			if text := indent(*s.TopLevelText, "    "); text != "" {
				b.WriteString("    wm_gettext:\n")
				b.WriteString(text)
				b.WriteString("\n")
			}
		}

		for _, c := range s.ChildTexts {
			text := indent(c.Text, "        ")
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "    child hwnd=0x%016X class=%s rect=%s\n",
				uint64(c.Handle), c.ClassName, formatRect(c.Rect))
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Digest is a compact one-line-per-window summary for model prompts.
func Digest(snapshots []Snapshot) string {
	if len(snapshots) == 0 {
		return "(no windows)"
	}
	var b strings.Builder
	for _, s := range snapshots {
		fmt.Fprintf(&b, "- %s %q at %s", s.ClassName, s.Title, formatRect(s.Rect))
		if n := len(s.ChildTexts); n > 0 {
			fmt.Fprintf(&b, " (%d text controls)", n)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatRect(r Rect) string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

func indent(text, prefix string) string {
	t := strings.ReplaceAll(text, "\r", "")
	if t == "" {
		return ""
	}
	lines := strings.Split(t, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
