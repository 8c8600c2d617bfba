package searcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// OutputFormat selects a result rendering. Formatting is presentational
// only and never affects scores or ordering.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"  // Colorized, for terminals
	FormatPlain OutputFormat = "plain" // Same layout without color
	FormatJSON  OutputFormat = "json"  // Machine-readable
)

// snippetLines caps how much code a rendered result shows
const snippetLines = 8

// FormatResults renders a response in the requested format
func FormatResults(resp *Response, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatPlain:
		return formatHuman(resp, false), nil
	case FormatText, "":
		return formatHuman(resp, true), nil
	default:
		return "", &types.ValidationError{Reason: fmt.Sprintf("unknown output format %q", format)}
	}
}

type jsonResult struct {
	Chunk       *types.Chunk `json:"chunk"`
	Score       float64      `json:"score"`
	VectorScore float64      `json:"vector_score,omitempty"`
	TextScore   float64      `json:"text_score,omitempty"`
	SearchType  string       `json:"search_type"`
}

type jsonResponse struct {
	Query    string       `json:"query"`
	Mode     string       `json:"mode"`
	Degraded bool         `json:"degraded,omitempty"`
	Count    int          `json:"count"`
	TookMS   int64        `json:"took_ms"`
	Results  []jsonResult `json:"results"`
}

func formatJSON(resp *Response) (string, error) {
	out := jsonResponse{
		Query:    resp.Query,
		Mode:     string(resp.Mode),
		Degraded: resp.Degraded,
		Count:    len(resp.Results),
		TookMS:   resp.TookMS,
		Results:  make([]jsonResult, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, jsonResult{
			Chunk:       r.Chunk,
			Score:       r.Score,
			VectorScore: r.VectorScore,
			TextScore:   r.TextScore,
			SearchType:  r.SearchType,
		})
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func formatHuman(resp *Response, colorized bool) string {
	header := color.New(color.FgCyan, color.Bold)
	location := color.New(color.FgGreen)
	dim := color.New(color.Faint)
	warn := color.New(color.FgYellow)
	if !colorized {
		for _, c := range []*color.Color{header, location, dim, warn} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	b.WriteString(header.Sprintf("%d results for %q (%s mode, %dms)\n",
		len(resp.Results), resp.Query, resp.Mode, resp.TookMS))
	if resp.Degraded {
		b.WriteString(warn.Sprint("note: embedding service unavailable, fell back to text search\n"))
	}

	for i, r := range resp.Results {
		c := r.Chunk
		b.WriteString("\n")
		b.WriteString(header.Sprintf("%d. %s %s", i+1, c.Type, c.Name))
		b.WriteString(dim.Sprintf("  (score %.3f)\n", r.Score))
		b.WriteString(location.Sprintf("   %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine))
		if c.Context != "" {
			b.WriteString(dim.Sprintf("   in %s\n", c.Context))
		}

		lines := strings.Split(c.Code, "\n")
		truncated := false
		if len(lines) > snippetLines {
			lines = lines[:snippetLines]
			truncated = true
		}
		for _, line := range lines {
			b.WriteString("   " + line + "\n")
		}
		if truncated {
			b.WriteString(dim.Sprint("   ...\n"))
		}
	}

	return b.String()
}
