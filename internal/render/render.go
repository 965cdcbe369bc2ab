// Package render produces the HTML fragments embedded in blog templates:
// the upcoming-events shortlist and Gravatar image tags.
package render

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gcalfeed/internal/config"
	"gcalfeed/internal/model"
)

// Format carries the display settings of a shortlist. It is passed per call
// so that differently configured callers can render concurrently.
type Format struct {
	DateFormat   string // Go layout, e.g. "02.01.2006"
	TimeFormat   string // Go layout, e.g. "15:04 Uhr"
	EmptyMessage string
}

// FormatFromConfig copies the display settings out of cfg.
func FormatFromConfig(cfg *config.Config) Format {
	return Format{
		DateFormat:   cfg.DateFormat,
		TimeFormat:   cfg.TimeFormat,
		EmptyMessage: cfg.EmptyMessage,
	}
}

const dashSeparator = template.HTML("&nbsp;&ndash;&nbsp;")

var shortlistTmpl = template.Must(template.New("shortlist").Parse(
	`<div class="gcal shortlist">` +
		`{{if .Items}}<ul>{{range .Items}}<li>` +
		`<div class="summary">{{.Summary}}</div>` +
		`<div class="info">{{.When}}</div>` +
		`<div class="info">{{.Location}}</div>` +
		`</li>{{end}}</ul>` +
		`{{else}}<div class="no_events">{{.Empty}}</div>{{end}}` +
		`</div>`))

type shortlistItem struct {
	Summary  string
	When     template.HTML
	Location string
}

// Shortlist renders events as a <div class="gcal shortlist"> fragment.
//
// Events starting and ending on the same date show their date and start
// time. For longer events the exclusive end date is moved back one day
// before display; if that leaves a single day only the date is shown.
func Shortlist(events []model.Event, f Format) (template.HTML, error) {
	data := struct {
		Items []shortlistItem
		Empty string
	}{Empty: f.EmptyMessage}

	for _, ev := range events {
		data.Items = append(data.Items, shortlistItem{
			Summary:  ev.Summary,
			When:     when(ev, f),
			Location: ev.Location,
		})
	}

	var buf bytes.Buffer
	if err := shortlistTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func date(t time.Time, layout string) template.HTML {
	return template.HTML(template.HTMLEscapeString(t.Format(layout)))
}

func when(ev model.Event, f Format) template.HTML {
	if ev.StartDate.Equal(ev.EndDate) {
		return date(ev.StartDate, f.DateFormat) + dashSeparator + date(ev.StartTime, f.TimeFormat)
	}

	last := ev.EndDate.AddDate(0, 0, -1)
	if !last.After(ev.StartDate) {
		return date(ev.StartDate, f.DateFormat)
	}
	return date(ev.StartDate, f.DateFormat) + dashSeparator + date(last, f.DateFormat)
}

// GravatarOptions mirrors config.GravatarConfig.
type GravatarOptions struct {
	Size    int
	Rating  string
	Default string
}

// GravatarOptionsFromConfig copies the avatar settings out of cfg.
func GravatarOptionsFromConfig(cfg *config.Config) GravatarOptions {
	return GravatarOptions{
		Size:    cfg.Gravatar.Size,
		Rating:  cfg.Gravatar.Rating,
		Default: cfg.Gravatar.Default,
	}
}

// GravatarURL returns the avatar URL for email. Gravatar identifies users by
// the MD5 of the trimmed, lower-cased address.
func GravatarURL(email string, o GravatarOptions) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))

	q := url.Values{}
	if o.Size > 0 {
		q.Set("size", strconv.Itoa(o.Size))
	}
	if o.Rating != "" {
		q.Set("rating", o.Rating)
	}
	if o.Default != "" {
		q.Set("default", o.Default)
	}

	u := "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:])
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

var gravatarTmpl = template.Must(template.New("gravatar").Parse(
	`<img src="{{.}}" alt="Gravatar image" class="gravatar" />`))

// GravatarTag renders an <img> tag for email.
func GravatarTag(email string, o GravatarOptions) (template.HTML, error) {
	var buf bytes.Buffer
	if err := gravatarTmpl.Execute(&buf, GravatarURL(email, o)); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
