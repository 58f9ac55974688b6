package orchestrator

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// farmHrefPattern matches the individual-farm locator the spec names as
// authoritative (spec §6 DOM contract): /report/point/<digits>/<digits>.
var farmHrefPattern = regexp.MustCompile(`/report/point/(\d+)/(\d+)`)

// excludedAnchorText filters out UI buttons that also render as anchors
// inside the farm-list container (spec §4.6).
var excludedAnchorText = map[string]bool{
	"전체 보기": true,
	"저장":    true,
}

// dateLikePattern rejects anchor text that is itself a date label rather
// than a farm name.
var dateLikePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// FarmLink is one parsed farm anchor from the farm-list page.
type FarmLink struct {
	FarmID      string
	SectionID   string
	DisplayName string
	Href        string
}

// ParseFarmList extracts farm anchors from the farm-list page HTML,
// selecting only anchors whose href matches the report/point pattern —
// never the container — and filtering visible text per spec §4.6: 3-200
// characters, not a date, not a known UI button, not empty after
// trimming (chart legends render as SVG text, not anchor text, so no
// legend exclusion is needed here).
func ParseFarmList(html string) ([]FarmLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var links []FarmLink
	doc.Find(selFarmListLink).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		m := farmHrefPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}

		text := strings.TrimSpace(sel.Text())
		if !validFarmText(text) {
			return
		}

		links = append(links, FarmLink{
			FarmID:      m[1],
			SectionID:   m[2],
			DisplayName: text,
			Href:        href,
		})
	})

	return links, nil
}

func validFarmText(text string) bool {
	if n := utf8.RuneCountInString(text); n < 3 || n > 200 {
		return false
	}
	if dateLikePattern.MatchString(text) {
		return false
	}
	if excludedAnchorText[text] {
		return false
	}
	return true
}

// BuildDateURL constructs the per-date navigation URL with the manager
// parameter always overwritten to match RunConfig.Manager, regardless of
// what the farm-link href contained (spec §4.6, testable property 7).
func BuildDateURL(href, manager, date string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("manager", manager)
	q.Set("date", date)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
