package tracker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/internal/enum"
)

// UnknownActor is the sentinel author for events whose actor could not be
// recovered from the email markup.
const UnknownActor = "Someone"

var (
	createdRe        = regexp.MustCompile(`(?i)(issue\s+created|has\s+been\s+created)`)
	assignedRe       = regexp.MustCompile(`(?i)assigned\s+to\s+you`)
	mentionDescRe    = regexp.MustCompile(`(?i)mentioned\s+in\s+the\s+issue\s+description`)
	mentionCommentRe = regexp.MustCompile(`(?i)mentioned\s+in\s+a\s+comment`)
	worklogRe        = regexp.MustCompile(`(?i)has\s+added\s+worklog`)
	changesByRe      = regexp.MustCompile(`(?i)changes\s+by`)
	reporterRowRe    = regexp.MustCompile(`(?i)field-update|row`)
	labelCellRe      = regexp.MustCompile(`(?i)updates-diff-label|^label`)
	contentCellRe    = regexp.MustCompile(`(?i)updates-diff-content|^content`)
)

// Parser classifies notification email HTML into structured tracker events.
// Classification is pure and deterministic: the same body always yields the
// same Outcome.
type Parser struct {
	markers  []string
	browseRe *regexp.Regexp
}

func NewParser(cfg *config.TrackerConfig) *Parser {
	markers := make([]string, 0, len(cfg.Markers))
	for _, m := range cfg.Markers {
		markers = append(markers, strings.ToLower(strings.TrimSpace(m)))
	}

	base := regexp.QuoteMeta(strings.TrimRight(cfg.BaseURL, "/"))
	return &Parser{
		markers:  markers,
		browseRe: regexp.MustCompile(base + `/browse/[A-Z0-9]+-\d+`),
	}
}

// Classify inspects one email body. Parsing is best effort: anything the
// heuristics cannot recover degrades to NotTracker or an empty extraction,
// never to an error.
func (p *Parser) Classify(htmlBody string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Kind: OutcomeNotTracker}
		}
	}()

	if !p.isTrackerMail(htmlBody) {
		return Outcome{Kind: OutcomeNotTracker}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return Outcome{Kind: OutcomeTrackerNoEvents}
	}

	task := p.extractTask(doc)
	events := resolveAuthors(p.extractEvents(doc))

	if len(events) == 0 {
		return Outcome{Kind: OutcomeTrackerNoEvents, Task: task}
	}

	return Outcome{
		Kind:   OutcomeTrackerEvents,
		Task:   task,
		Events: events,
	}
}

func (p *Parser) isTrackerMail(htmlBody string) bool {
	lower := strings.ToLower(htmlBody)
	for _, marker := range p.markers {
		if marker != "" && strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// extractTask recovers the issue key, URL and summary. A full miss returns
// nil and downstream rendering falls back to the email subject.
func (p *Parser) extractTask(doc *goquery.Document) *Task {
	var task *Task

	doc.Find("a[href]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !p.browseRe.MatchString(href) {
			return true
		}
		task = &Task{
			Key: strings.TrimSpace(sel.Text()),
			URL: href,
		}
		return false
	})

	if task == nil {
		return nil
	}

	task.Summary = strings.TrimSpace(doc.Find("h1").First().Text())
	return task
}

// extractEvents walks the structural regions of the email and collects the
// author set per event type.
func (p *Parser) extractEvents(doc *goquery.Document) []Event {
	text := doc.Text()

	authors := map[enum.EventType]map[string]struct{}{}
	add := func(t enum.EventType, author string) {
		if authors[t] == nil {
			authors[t] = map[string]struct{}{}
		}
		authors[t][author] = struct{}{}
	}

	commentAuthors := commentRegionAuthors(doc)

	if createdRe.MatchString(text) {
		add(enum.EventCreated, reporterOf(doc))
	}

	if assignedRe.MatchString(text) {
		add(enum.EventAssigned, assigneeChangerOf(doc))
	}

	for author := range updateRegionAuthors(doc) {
		add(enum.EventUpdated, author)
	}

	for author := range commentAuthors {
		add(enum.EventCommented, author)
	}

	if mentionDescRe.MatchString(text) {
		found := false
		for author := range descriptionChangersOf(doc) {
			add(enum.EventMentionedDescription, author)
			found = true
		}
		if !found {
			add(enum.EventMentionedDescription, "")
		}
	}

	if mentionCommentRe.MatchString(text) {
		if len(commentAuthors) == 0 {
			add(enum.EventMentionedComment, "")
		} else {
			for author := range commentAuthors {
				add(enum.EventMentionedComment, author)
			}
		}
	}

	for author := range worklogRegionAuthors(doc) {
		add(enum.EventWorklogged, author)
	}

	// Fixed type order and sorted authors within a type keep classification
	// idempotent over identical input.
	var events []Event
	for _, t := range enum.AllEventTypes() {
		set := authors[t]
		if len(set) == 0 {
			continue
		}
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			events = append(events, Event{Author: name, Type: t})
		}
	}

	return events
}

// resolveAuthors fills unresolved authors with the first resolved author in
// the same email, else the unknown-actor sentinel, so every event stays
// attributable.
func resolveAuthors(events []Event) []Event {
	first := ""
	for _, e := range events {
		if e.Author != "" {
			first = e.Author
			break
		}
	}
	if first == "" {
		first = UnknownActor
	}

	for i := range events {
		if events[i].Author == "" {
			events[i].Author = first
		}
	}

	// Filling authors can collapse two events of the same type into
	// duplicates; keep the first of each (author, type) pair.
	seen := map[Event]struct{}{}
	out := events[:0]
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}

	return out
}

// reporterOf finds who created the issue: first the Reporter row of the
// field table, then the "NAME created this issue on" emphasis.
func reporterOf(doc *goquery.Document) string {
	reporter := ""

	doc.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		class, _ := row.Attr("class")
		if !reporterRowRe.MatchString(class) {
			return true
		}

		label := row.Find("td").FilterFunction(func(i int, td *goquery.Selection) bool {
			tdClass, _ := td.Attr("class")
			return labelCellRe.MatchString(tdClass)
		}).First()
		if !strings.Contains(strings.ToLower(label.Text()), "reporter:") {
			return true
		}

		content := row.Find("td").FilterFunction(func(i int, td *goquery.Selection) bool {
			tdClass, _ := td.Attr("class")
			return contentCellRe.MatchString(tdClass)
		}).First()
		if content.Length() == 0 {
			return true
		}

		if link := content.Find("a").First(); link.Length() > 0 {
			reporter = strings.TrimSpace(link.Text())
		} else {
			reporter = strings.TrimSpace(content.Text())
		}
		return reporter == ""
	})

	if reporter != "" {
		return reporter
	}

	doc.Find("strong").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		parentText := strings.ToLower(sel.Parent().Text())
		if strings.Contains(parentText, "created this issue on") {
			reporter = strings.TrimSpace(sel.Text())
			return false
		}
		return true
	})

	return reporter
}

// assigneeChangerOf finds the author of the change block that touched the
// Assignee field.
func assigneeChangerOf(doc *goquery.Document) string {
	author := ""

	doc.Find("td, div, p").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !changesByRe.MatchString(text) || !strings.Contains(strings.ToLower(text), "assignee:") {
			return true
		}
		if name := strings.TrimSpace(sel.Find("strong").First().Text()); name != "" {
			author = name
			return false
		}
		return true
	})

	return author
}

// updateRegionAuthors collects every "Changes by NAME" author under the
// update headings.
func updateRegionAuthors(doc *goquery.Document) map[string]struct{} {
	authors := map[string]struct{}{}

	eachRegionTable(doc, "update", func(table *goquery.Selection) {
		table.Find("td, div, p").Each(func(i int, sel *goquery.Selection) {
			if !changesByRe.MatchString(sel.Text()) {
				return
			}
			if name := strings.TrimSpace(sel.Find("strong").First().Text()); name != "" {
				authors[name] = struct{}{}
			}
		})
	})

	return authors
}

// commentRegionAuthors collects "NAME on <date>" authors under the comment
// headings.
func commentRegionAuthors(doc *goquery.Document) map[string]struct{} {
	authors := map[string]struct{}{}

	eachRegionTable(doc, "comment", func(table *goquery.Selection) {
		table.Find("strong").Each(func(i int, sel *goquery.Selection) {
			parentText := strings.ToLower(sel.Parent().Text())
			if strings.Contains(parentText, " on ") {
				if name := strings.TrimSpace(sel.Text()); name != "" {
					authors[name] = struct{}{}
				}
			}
		})
	})

	return authors
}

// descriptionChangersOf collects authors of update blocks that touched the
// Description field; they are the best guess for a description mention.
func descriptionChangersOf(doc *goquery.Document) map[string]struct{} {
	authors := map[string]struct{}{}

	eachRegionTable(doc, "update", func(table *goquery.Selection) {
		if !strings.Contains(strings.ToLower(table.Text()), "description:") {
			return
		}
		if name := strings.TrimSpace(table.Find("strong").First().Text()); name != "" {
			authors[name] = struct{}{}
		}
	})

	return authors
}

// worklogRegionAuthors collects "NAME has added worklog" authors.
func worklogRegionAuthors(doc *goquery.Document) map[string]struct{} {
	authors := map[string]struct{}{}

	doc.Find("td, div, p, li, span").Each(func(i int, sel *goquery.Selection) {
		if !worklogRe.MatchString(sel.Text()) {
			return
		}
		if name := strings.TrimSpace(sel.Find("strong").First().Text()); name != "" {
			authors[name] = struct{}{}
		}
	})

	return authors
}

// eachRegionTable visits the first table following each h2 whose text
// matches the region keyword, e.g. "2 updates" or "1 comment".
func eachRegionTable(doc *goquery.Document, keyword string, visit func(table *goquery.Selection)) {
	doc.Find("h2").Each(func(i int, heading *goquery.Selection) {
		if !strings.Contains(strings.ToLower(heading.Text()), keyword) {
			return
		}

		table := heading.NextAllFiltered("table").First()
		if table.Length() == 0 {
			table = heading.Parent().Find("table").First()
		}
		if table.Length() > 0 {
			visit(table)
		}
	})
}
