package processors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"lessonkb/core"
)

// Quiz-style blocks carry no lesson content worth indexing.
var ignoreBlockNames = map[string]struct{}{
	"choice":          {},
	"matching":        {},
	"match":           {},
	"multi_choice":    {},
	"multiple_choice": {},
	"code":            {},
}

var textBlockNames = map[string]struct{}{
	"text":     {},
	"html":     {},
	"markdown": {},
}

// rawStep mirrors the catalog's loosely-typed step payload. Upstream sends
// block sometimes as an object and sometimes as a one-element array, so the
// block field stays raw until normalized.
type rawStep struct {
	ID         int64           `json:"id"`
	Position   int             `json:"position"`
	UpdateDate string          `json:"update_date"`
	Block      json.RawMessage `json:"block"`
	Transcript string          `json:"transcript"`
}

type rawBlock struct {
	Name  string     `json:"name"`
	Text  string     `json:"text"`
	Video *rawVideo  `json:"video"`
	URLs  []videoURL `json:"urls"`
}

type rawVideo struct {
	URLs []videoURL `json:"urls"`
}

type videoURL struct {
	Quality json.RawMessage `json:"quality"` // string or number upstream
	URL     string          `json:"url"`
	Src     string          `json:"src"`
	Link    string          `json:"link"`
}

// ParseStep validates one raw catalog step and converts it into the typed
// form the rest of the pipeline works with. Malformed or ignorable steps
// are rejected here at the boundary, never deeper in the engine; the bool
// reports whether the step survived.
func ParseStep(raw []byte, sourceFile string) (*core.Step, bool) {
	var step rawStep
	if err := json.Unmarshal(raw, &step); err != nil {
		return nil, false
	}

	block, ok := normalizeBlock(step.Block)
	if !ok {
		return nil, false
	}

	blockName := strings.ToLower(strings.TrimSpace(block.Name))
	if _, ignored := ignoreBlockNames[blockName]; ignored {
		return nil, false
	}

	result := &core.Step{
		StepID:     step.ID,
		Position:   step.Position,
		UpdateDate: step.UpdateDate,
		BlockName:  blockName,
		Transcript: step.Transcript,
		SourceFile: sourceFile,
	}

	if _, isText := textBlockNames[blockName]; isText {
		cleaned := CleanHTML(block.Text)
		if cleaned == "" {
			return nil, false
		}
		result.Text = cleaned
		return result, true
	}

	if blockName == "video" {
		urls := block.URLs
		if block.Video != nil && len(block.Video.URLs) > 0 {
			urls = block.Video.URLs
		}
		best := pickMinQualityURL(urls)
		if best == "" {
			return nil, false
		}
		result.VideoURL = best
		result.Text = CleanHTML(block.Text)
		return result, true
	}

	if cleaned := CleanHTML(block.Text); cleaned != "" {
		result.Text = cleaned
		return result, true
	}
	return nil, false
}

// normalizeBlock accepts the block as either an object or a one-element
// array of objects.
func normalizeBlock(raw json.RawMessage) (*rawBlock, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var block rawBlock
	if err := json.Unmarshal(raw, &block); err == nil {
		return &block, true
	}
	var blocks []rawBlock
	if err := json.Unmarshal(raw, &blocks); err == nil && len(blocks) > 0 {
		return &blocks[0], true
	}
	return nil, false
}

var qualityDigits = regexp.MustCompile(`\d+`)

// pickMinQualityURL selects the cheapest usable stream: exactly 360p when
// offered, otherwise the lowest numeric quality, otherwise the last entry
// without a parseable quality label.
func pickMinQualityURL(urls []videoURL) string {
	type pair struct {
		quality int
		url     string
	}
	var numeric []pair
	var fallback []string

	for _, e := range urls {
		u := e.URL
		if u == "" {
			u = e.Src
		}
		if u == "" {
			u = e.Link
		}
		if u == "" {
			continue
		}
		if m := qualityDigits.FindString(string(e.Quality)); m != "" {
			if q, err := strconv.Atoi(m); err == nil {
				numeric = append(numeric, pair{quality: q, url: u})
				continue
			}
		}
		fallback = append(fallback, u)
	}

	if len(numeric) > 0 {
		best := numeric[0]
		for _, p := range numeric {
			if p.quality == 360 {
				return p.url
			}
			if p.quality < best.quality {
				best = p
			}
		}
		return best.url
	}
	if len(fallback) > 0 {
		return fallback[len(fallback)-1]
	}
	return ""
}

var (
	lineBreakTags = map[string]struct{}{
		"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {},
		"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
		"tr": {}, "blockquote": {},
	}
	disallowedRunes = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:()\-"'«»]`)
	repeatedSpaces  = regexp.MustCompile(`[ \t]+`)
	repeatedBreaks  = regexp.MustCompile(`\n\s*\n`)
)

// CleanHTML strips markup from step content while keeping code intact:
// code and pre elements come back as fenced blocks, untouched by the
// character scrubbing applied to prose.
func CleanHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	var codeBlocks []string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "code" || n.Data == "pre") {
			codeBlocks = append(codeBlocks, "\n```\n"+textContent(n)+"\n```\n")
			fmt.Fprintf(&b, "__CODE_BLOCK_%d__", len(codeBlocks)-1)
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			if _, breaks := lineBreakTags[n.Data]; breaks {
				b.WriteString("\n")
			}
		}
	}
	walk(doc)

	text := strings.ReplaceAll(b.String(), " ", " ")
	text = disallowedRunes.ReplaceAllString(text, "")
	text = repeatedSpaces.ReplaceAllString(text, " ")
	text = repeatedBreaks.ReplaceAllString(text, "\n\n")

	for i, block := range codeBlocks {
		text = strings.Replace(text, fmt.Sprintf("__CODE_BLOCK_%d__", i), block, 1)
	}
	return strings.TrimSpace(text)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
