package execlog

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var headerPattern = regexp.MustCompile(`^=== (.+?) \| pid=(\d+) \| image=(\S+) \| turn=(\d+) ===$`)

// Parse reads a log back into its blocks. Blocks start at a header line and
// end at the first blank line.
func Parse(r io.Reader) ([]ParsedEntry, error) {
	var (
		entries []ParsedEntry
		current *ParsedEntry
		field   *string
		lineNo  int
	)

	flush := func() {
		if current != nil {
			current.Story = strings.TrimSuffix(current.Story, "\n")
			current.Failure = strings.TrimSuffix(current.Failure, "\n")
			current.Raw = strings.TrimSuffix(current.Raw, "\n")
			entries = append(entries, *current)
		}
		current, field = nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if current == nil {
			if line == "" {
				continue
			}
			e, err := parseHeader(line)
			if err != nil {
				return entries, fmt.Errorf("%w: line %d: %v", ErrMalformedLog, lineNo, err)
			}
			current = e
			continue
		}

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "outcome="):
			parseOutcome(current, line)
			field = nil
		case line == "story:":
			field = &current.Story
		case line == "failure:":
			field = &current.Failure
		case line == "raw:":
			field = &current.Raw
		case field != nil && strings.HasPrefix(line, bodyIndent):
			*field += strings.TrimPrefix(line, bodyIndent) + "\n"
		default:
			field = nil
			current.Windows = append(current.Windows, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read execution log: %w", err)
	}
	if current != nil {
		return entries, fmt.Errorf("%w: turn %d is not terminated", ErrMalformedLog, current.TurnIndex)
	}
	return entries, nil
}

func parseHeader(line string) (*ParsedEntry, error) {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("expected header, got %q", line)
	}
	ts, err := time.ParseInLocation(TimestampLayout, m[1], time.Local)
	if err != nil {
		return nil, err
	}
	pid, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return nil, err
	}
	turn, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, err
	}
	return &ParsedEntry{
		TurnIndex:      turn,
		Timestamp:      ts,
		ProcessID:      uint32(pid),
		ScreenshotName: m[3],
	}, nil
}

func parseOutcome(e *ParsedEntry, line string) {
	for _, kv := range strings.Fields(line) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "outcome":
			e.Outcome = Outcome(v)
		case "action":
			e.Action = v
		}
	}
}
