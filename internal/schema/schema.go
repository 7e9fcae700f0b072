// Package schema maps the report graph's entities onto store items.
package schema

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

// Item types.
const (
	TypeReport      = "Report"
	TypeReporter    = "Reporter"
	TypeLocation    = "Location"
	TypePhoto       = "Photo"
	TypeFile        = "File"
	TypePhoneNumber = "PhoneNumber"
)

// Edge names.
const (
	EdgeReporter       = "reporter"
	EdgeLocation       = "location"
	EdgePhoto          = "photo"
	EdgeFile           = "file"
	EdgeHasPhoneNumber = "hasPhoneNumber"
)

// Report is the persisted incident record.
type Report struct {
	ID           uuid.UUID
	Category     string
	Subtype      string
	Text         string
	Status       string
	ReviewStatus string
	Size         *int
	Importance   *int // 0-10
}

func NewReport(category, subtype string) *Report {
	return &Report{ID: uuid.New(), Category: category, Subtype: subtype}
}

func (r *Report) Item() store.Item {
	props := map[string]any{
		"category": r.Category,
		"text":     r.Text,
		"status":   r.Status,
	}
	if r.Subtype != "" {
		props["subtype"] = r.Subtype
	}
	if r.ReviewStatus != "" {
		props["reviewStatus"] = r.ReviewStatus
	}
	if r.Size != nil {
		props["size"] = *r.Size
	}
	if r.Importance != nil {
		props["importance"] = *r.Importance
	}
	return store.Item{ID: r.ID, Type: TypeReport, Properties: props}
}

// AppendText adds text on a new line, keeping what is already there.
func (r *Report) AppendText(text string) {
	switch {
	case text == "":
	case r.Text == "":
		r.Text = text
	default:
		r.Text += "\n" + text
	}
}

func ReportFromItem(it store.Item) (*Report, error) {
	if it.Type != TypeReport {
		return nil, fmt.Errorf("schema: item %s is a %s, not a %s", it.ID, it.Type, TypeReport)
	}
	return &Report{
		ID:           it.ID,
		Category:     str(it.Properties, "category"),
		Subtype:      str(it.Properties, "subtype"),
		Text:         str(it.Properties, "text"),
		Status:       str(it.Properties, "status"),
		ReviewStatus: str(it.Properties, "reviewStatus"),
		Size:         intPtr(it.Properties, "size"),
		Importance:   intPtr(it.Properties, "importance"),
	}, nil
}

// Reporter is a registered person allowed to file reports.
type Reporter struct {
	ID          uuid.UUID
	UserKey     string
	Username    string
	Information string
}

func (r *Reporter) Item() store.Item {
	return store.Item{ID: r.ID, Type: TypeReporter, Properties: map[string]any{
		"userKey":     r.UserKey,
		"username":    r.Username,
		"information": r.Information,
	}}
}

func ReporterFromItem(it store.Item) *Reporter {
	return &Reporter{
		ID:          it.ID,
		UserKey:     str(it.Properties, "userKey"),
		Username:    str(it.Properties, "username"),
		Information: str(it.Properties, "information"),
	}
}

// ReporterFilter finds a reporter by natural key.
func ReporterFilter(userKey string) store.Filter {
	return store.Filter{Type: TypeReporter, Properties: map[string]any{"userKey": userKey}}
}

type PhoneNumber struct {
	ID          uuid.UUID
	PhoneNumber string
}

func (p *PhoneNumber) Item() store.Item {
	return store.Item{ID: p.ID, Type: TypePhoneNumber, Properties: map[string]any{
		"phoneNumber": p.PhoneNumber,
	}}
}

type Location struct {
	ID        uuid.UUID
	Latitude  float64
	Longitude float64
}

func (l *Location) Item() store.Item {
	return store.Item{ID: l.ID, Type: TypeLocation, Properties: map[string]any{
		"latitude":  l.Latitude,
		"longitude": l.Longitude,
	}}
}

func str(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intPtr(props map[string]any, key string) *int {
	switch v := props[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	default:
		return nil
	}
}
