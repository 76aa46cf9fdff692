package portal

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"absen/internal/model"
)

// Parsers in this file are pure: markup in, entities out.

var failureKeywords = []string{"salah", "gagal", "invalid", "wrong", "incorrect"}

// LoginPage is what the credential submission response revealed.
type LoginPage struct {
	Success     bool
	Alert       string
	Signals     []string
	StudentName string
}

func load(markup []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(markup))
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseLoginResponse inspects the credential submission response. location is
// the redirect target or final URL, possibly empty.
func ParseLoginResponse(markup []byte, location, loginID string) (LoginPage, error) {
	doc, err := load(markup)
	if err != nil {
		return LoginPage{}, &PageError{Page: "login", Reason: err.Error()}
	}

	alert := squash(doc.Find(".alert-danger, .error").Text())
	if alert != "" {
		lower := strings.ToLower(alert)
		for _, kw := range failureKeywords {
			if strings.Contains(lower, kw) {
				return LoginPage{Alert: alert}, nil
			}
		}
	}

	if looksLikeLoginPage(doc) {
		return LoginPage{Alert: alert}, nil
	}

	var signals []string
	if strings.Contains(location, "index.php") && !strings.Contains(location, "login.php") {
		signals = append(signals, "redirect")
	}
	if strings.Contains(doc.Find("title").Text(), "Dashboard") || strings.Contains(doc.Find("body").Text(), "Dashboard") {
		signals = append(signals, "dashboard")
	}
	if doc.Find(`a[href*="logout"], a[href*="keluar"]`).Length() > 0 {
		signals = append(signals, "logout")
	}
	if doc.Find(".user-panel, .user-info, #user-panel").Length() > 0 {
		signals = append(signals, "user-panel")
	}

	page := LoginPage{Success: len(signals) > 0, Alert: alert, Signals: signals}
	if page.Success {
		page.StudentName = extractStudentName(doc, loginID)
	}
	return page, nil
}

var nameWidgets = []string{
	".user-panel .info p",
	".user-name",
	".profile-usertitle-name",
	".user-info .name",
	"span.username",
	".navbar .dropdown-toggle span",
}

func plausibleName(s string) bool {
	return len(s) > 3
}

func cleanName(s, loginID string) string {
	s = strings.ReplaceAll(s, loginID, "")
	s = strings.Trim(squash(s), " -|:()[],")
	return squash(s)
}

// extractStudentName runs the name heuristics in priority order.
func extractStudentName(doc *goquery.Document, loginID string) string {
	for _, sel := range nameWidgets {
		name := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name = cleanName(s.Text(), loginID)
			return !plausibleName(name)
		})
		if plausibleName(name) {
			return name
		}
	}
	if loginID == "" {
		return ""
	}

	// Leaf elements mentioning the login id with extra text, e.g. "NAME (NIM)".
	name := ""
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := squash(s.Text())
		if text == loginID || !strings.Contains(text, loginID) {
			return true
		}
		name = cleanName(text, loginID)
		return !plausibleName(name)
	})
	if plausibleName(name) {
		return name
	}

	// An element holding exactly the login id; the name sits next to it.
	name = ""
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if squash(s.Text()) != loginID {
			return true
		}
		for _, near := range []*goquery.Selection{s.Prev(), s.Next(), s.Parent().Prev(), s.Parent().Next()} {
			if near.Length() == 0 {
				continue
			}
			name = cleanName(near.Text(), loginID)
			if plausibleName(name) {
				return false
			}
		}
		return true
	})
	if plausibleName(name) {
		return name
	}
	return ""
}

// looksLikeLoginPage reports whether the portal served its login form, which
// is how an expired session shows up.
func looksLikeLoginPage(doc *goquery.Document) bool {
	return doc.Find(`input[name="txUser"], input[name="txPass"], input[name="kdc"]`).Length() > 0
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func queryParam(href, key string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return ref.Query().Get(key)
}

// itemID keys an item by its discussion id, then its roster id, then its
// title, so items without links stay distinct in snapshots.
func itemID(discussionHref, rosterHref, title string) string {
	if id := queryParam(discussionHref, "dm"); id != "" {
		return id
	}
	if id := queryParam(rosterHref, "id"); id != "" {
		return "hadir:" + id
	}
	return "title:" + title
}

func blockTitle(s *goquery.Selection) string {
	return squash(s.Find("h4.text-primary b").First().Text())
}

// ParseCourses extracts the course blocks from the e-learning listing.
// listingURL resolves relative action links.
func ParseCourses(markup []byte, listingURL string) ([]model.Course, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, err
	}
	doc, err := load(markup)
	if err != nil {
		return nil, &PageError{Page: "courses", Reason: err.Error()}
	}
	if looksLikeLoginPage(doc) {
		return nil, ErrSessionInvalid
	}

	var courses []model.Course
	doc.Find(".room-box").Each(func(_ int, box *goquery.Selection) {
		title := blockTitle(box)
		if title == "" {
			return
		}
		parts := strings.Split(title, "|")
		part := func(i int) string {
			if i < len(parts) {
				return strings.TrimSpace(parts[i])
			}
			return ""
		}
		contentHref, _ := box.Find(`a[href*="?m="]`).First().Attr("href")
		assignmentHref, _ := box.Find(`a[href*="?t="]`).First().Attr("href")
		discussionHref, _ := box.Find(`a[href*="?dk="]`).First().Attr("href")

		courses = append(courses, model.Course{
			ContentID:  queryParam(contentHref, "m"),
			Semester:   part(0),
			Code:       part(1),
			Name:       part(2),
			Credits:    part(3),
			Class:      part(4),
			Instructor: squash(box.Find("name").Text()),
			Contact:    squash(box.Find("p.message").First().Text()),
			Links: model.CourseLinks{
				Content:    resolve(base, contentHref),
				Assignment: resolve(base, assignmentHref),
				Discussion: resolve(base, discussionHref),
			},
		})
	})
	return courses, nil
}

func labeledField(box *goquery.Selection, label string) string {
	var out string
	box.Find(".form-group").EachWithBreak(func(_ int, g *goquery.Selection) bool {
		if !strings.Contains(g.Find("label").Text(), label) {
			return true
		}
		out = squash(g.Find(".controls").Text())
		return false
	})
	return out
}

// ParseContentItems extracts content blocks of one course. seenAt stamps
// every item for the snapshot audit trail.
func ParseContentItems(markup []byte, listingURL string, seenAt time.Time) ([]model.ContentItem, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, err
	}
	doc, err := load(markup)
	if err != nil {
		return nil, &PageError{Page: "content", Reason: err.Error()}
	}
	if looksLikeLoginPage(doc) {
		return nil, ErrSessionInvalid
	}

	var items []model.ContentItem
	doc.Find(".room-box").Each(func(_ int, box *goquery.Selection) {
		title := blockTitle(box)
		if title == "" {
			return
		}
		window := labeledField(box, "Waktu Kehadiran")
		lower := strings.ToLower(window)
		discussionHref, _ := box.Find(`a[href*="?dm="]`).First().Attr("href")
		rosterHref, _ := box.Find(`a[href*="materi_hadir.php"]`).First().Attr("href")

		items = append(items, model.ContentItem{
			ID:               itemID(discussionHref, rosterHref, title),
			Title:            title,
			Topic:            labeledField(box, "Bahasan"),
			AttendanceWindow: window,
			DiscussionWindow: labeledField(box, "Waktu Diskusi"),
			Manual:           strings.Contains(lower, "manual"),
			Open:             !strings.Contains(lower, "selesai"),
			CheckInLink:      resolve(base, discussionHref),
			RosterLink:       resolve(base, rosterHref),
			SeenAt:           seenAt,
		})
	})
	return items, nil
}

// ParseCheckIn returns the heading of the discussion page visited to check in.
func ParseCheckIn(markup []byte) (string, error) {
	doc, err := load(markup)
	if err != nil {
		return "", &PageError{Page: "check-in", Reason: err.Error()}
	}
	if looksLikeLoginPage(doc) {
		return "", ErrSessionInvalid
	}
	return squash(doc.Find("h4.text-primary b").First().Text()), nil
}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{1,2}:\d{2}(?::\d{2})?`),
	regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4},?\s+\d{1,2}[:.]\d{2}(?:[:.]\d{2})?`),
	regexp.MustCompile(`\d{1,2}\s+[A-Za-z]+\s+\d{4},?\s+\d{1,2}[:.]\d{2}(?:[:.]\d{2})?`),
	regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`),
}

func findTimestamp(text string) string {
	for _, re := range timestampPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// ParseRoster looks for loginID in the attendance table. Rows are scanned
// first; when no row carries the exact id the whole table text is searched.
func ParseRoster(markup []byte, loginID string) (model.Attendance, error) {
	doc, err := load(markup)
	if err != nil {
		return model.Attendance{}, &PageError{Page: "roster", Reason: err.Error()}
	}
	if looksLikeLoginPage(doc) {
		return model.Attendance{}, ErrSessionInvalid
	}
	tables := doc.Find("table")
	if tables.Length() == 0 {
		return model.Attendance{}, &PageError{Page: "roster", Reason: "no attendance table"}
	}

	var found *model.Attendance
	tables.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		texts := make([]string, cells.Length())
		cells.Each(func(i int, c *goquery.Selection) { texts[i] = squash(c.Text()) })

		match := -1
		if texts[0] == loginID {
			match = 0
		} else {
			for i, t := range texts {
				if t == loginID {
					match = i
					break
				}
			}
		}
		if match < 0 {
			return true
		}
		att := model.Attendance{Present: true}
		for i, t := range texts {
			if i == match {
				continue
			}
			if ts := findTimestamp(t); ts != "" {
				att.Timestamp = ts
				break
			}
		}
		found = &att
		return false
	})
	if found != nil {
		return *found, nil
	}

	text := squash(tables.Text())
	idx := indexID(text, loginID)
	if idx < 0 {
		return model.Attendance{Present: false}, nil
	}
	return model.Attendance{Present: true, Timestamp: findTimestamp(text[idx+len(loginID):])}, nil
}

// indexID finds id in text where it is not part of a longer digit run.
func indexID(text, id string) int {
	if id == "" {
		return -1
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], id)
		if i < 0 {
			return -1
		}
		start, end := from+i, from+i+len(id)
		if (start == 0 || !isDigit(text[start-1])) && (end == len(text) || !isDigit(text[end])) {
			return start
		}
		from = start + 1
	}
	return -1
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
