package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"riq-studio-api/core/logger"
	"riq-studio-api/modules/availability/entity"

	"golang.org/x/net/html"
)

// Record Co renders one reserve-space grid page per date: studios as rows,
// slot start times as columns, cell styling as the availability indicator.
var recordCoStudios = map[string]string{
	"Studio C": entity.StudioC,
	"Studio D": entity.StudioD,
}

// Record Co labels columns by slot start time.
var recordCoSlotLabels = map[string]string{
	"10:30": entity.SlotMorning,
	"3:00":  entity.SlotAfternoon,
	"15:00": entity.SlotAfternoon,
	"7:30":  entity.SlotEvening,
	"19:30": entity.SlotEvening,
}

// RecordCoAdapter normalizes the third-party reserve-space grid into
// availability facts. Each Fetch opens, uses and releases its HTTP resources
// within the call; no session state is held across calls.
type RecordCoAdapter struct {
	gridURL  string
	username string
	password string
	client   *http.Client
}

func NewRecordCoAdapter(gridURL, username, password string, timeout time.Duration) *RecordCoAdapter {
	return &RecordCoAdapter{
		gridURL:  gridURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *RecordCoAdapter) Source() string {
	return entity.SourceRecordCo
}

func (a *RecordCoAdapter) Fetch(ctx context.Context, from, to time.Time) ([]entity.AvailabilityFact, error) {
	var facts []entity.AvailabilityFact

	for date := entity.DateOnly(from); date.Before(to); date = date.AddDate(0, 0, 1) {
		dateFacts, err := a.fetchDate(ctx, date)
		if err != nil {
			return nil, NewFetchError(entity.SourceRecordCo, fmt.Errorf("date %s: %w", date.Format(entity.DateLayout), err))
		}
		facts = append(facts, dateFacts...)
	}

	return facts, nil
}

func (a *RecordCoAdapter) fetchDate(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error) {
	sep := "?"
	if strings.Contains(a.gridURL, "?") {
		sep = "&"
	}
	reqURL := fmt.Sprintf("%s%sdate=%s", a.gridURL, sep, date.Format(entity.DateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse grid page: %w", err)
	}

	facts := a.parseGrid(doc, date)
	logger.Info("RecordCoAdapter:FetchDate", "date", date.Format(entity.DateLayout), "facts", len(facts))
	return facts, nil
}

type gridCell struct {
	text  string
	class string
}

func (a *RecordCoAdapter) parseGrid(doc *html.Node, date time.Time) []entity.AvailabilityFact {
	rows := collectRows(doc)
	if len(rows) == 0 {
		return nil
	}

	// The header row maps column index -> slot via the time labels.
	slotByColumn := make(map[int]string)
	for _, row := range rows {
		for i, cell := range row {
			if slot, ok := matchSlotLabel(cell.text); ok {
				slotByColumn[i] = slot
			}
		}
		if len(slotByColumn) > 0 {
			break
		}
	}
	if len(slotByColumn) == 0 {
		return nil
	}

	var facts []entity.AvailabilityFact
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		studioID, ok := matchStudio(row[0].text)
		if !ok {
			continue
		}
		for i, cell := range row {
			slot, ok := slotByColumn[i]
			if !ok {
				continue
			}
			facts = append(facts, entity.AvailabilityFact{
				Date:       date,
				StudioID:   studioID,
				TimeSlotID: slot,
				Available:  cellAvailable(cell),
				Source:     entity.SourceRecordCo,
				SyncStatus: entity.SyncStatusSynced,
			})
		}
	}

	return facts
}

// collectRows flattens every <tr> in the document into its cells.
func collectRows(doc *html.Node) [][]gridCell {
	var rows [][]gridCell

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var row []gridCell
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, gridCell{
						text:  strings.TrimSpace(nodeText(c)),
						class: attrValue(c, "class"),
					})
				}
			}
			rows = append(rows, row)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return rows
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func matchStudio(text string) (string, bool) {
	for label, id := range recordCoStudios {
		if strings.Contains(text, label) {
			return id, true
		}
	}
	return "", false
}

func matchSlotLabel(text string) (string, bool) {
	normalized := strings.ToLower(strings.ReplaceAll(text, " ", ""))
	if normalized == "" || !strings.Contains(normalized, ":") {
		return "", false
	}
	for label, slot := range recordCoSlotLabels {
		if strings.Contains(normalized, label) {
			return slot, true
		}
	}
	return "", false
}

// cellAvailable classifies a grid cell. Explicit booked/reserved markers win;
// explicit open markers count as available; anything indeterminate reads as
// unavailable, matching the grid-formatting rule for unknown slots.
func cellAvailable(cell gridCell) bool {
	class := strings.ToLower(cell.class)

	for _, marker := range []string{"unavailable", "booked", "reserved", "disabled"} {
		if strings.Contains(class, marker) {
			return false
		}
	}
	for _, marker := range []string{"available", "free", "open"} {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}
