package testutil

import (
	"bytes"
	"fmt"
	"html"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
)

// FakeBook is one work served by a FakeCatalog.
type FakeBook struct {
	ID        string
	Title     string
	Authors   []string
	Tags      []string
	Intro     string
	Score     string // "9.2"; empty omits the rating
	Published string // "2020-12-17"; empty omits the date
	Cover     []byte // nil serves a generated PNG
}

// FakeCatalog is an httptest server speaking the catalog's page layout:
// /so/<keyword>.html search pages, /book/<id>/ detail pages and
// /covers/<id> cover images.
type FakeCatalog struct {
	Server *httptest.Server

	mu            sync.Mutex
	books         map[string]FakeBook
	order         []string
	results       []string
	hasResults    bool
	searchStatus  int
	coverStatus   map[string]int
	requests      map[string]int
	lastKeyword   string
	defaultCovers map[string][]byte
}

// NewFakeCatalog starts a fake catalog that is closed when the test ends.
func NewFakeCatalog(t *testing.T) *FakeCatalog {
	t.Helper()

	f := &FakeCatalog{
		books:         map[string]FakeBook{},
		coverStatus:   map[string]int{},
		requests:      map[string]int{},
		defaultCovers: map[string][]byte{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the catalog base URL.
func (f *FakeCatalog) URL() string { return f.Server.URL }

// CoverBaseURL is the base that cover URLs are built from.
func (f *FakeCatalog) CoverBaseURL() string { return f.Server.URL + "/covers" }

// AddBook registers b. Search pages list books in the order they were added.
func (f *FakeCatalog) AddBook(b FakeBook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[b.ID]; !ok {
		f.order = append(f.order, b.ID)
	}
	f.books[b.ID] = b
}

// SetSearchResults fixes the ids every search returns. No ids gives an empty result page.
func (f *FakeCatalog) SetSearchResults(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = ids
	f.hasResults = true
}

// SetSearchStatus makes search requests answer with code.
func (f *FakeCatalog) SetSearchStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchStatus = code
}

// SetCoverStatus makes requests for the cover path (e.g. "/covers/123/") answer with code.
func (f *FakeCatalog) SetCoverStatus(path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coverStatus[path] = code
}

// Requests reports how many requests hit path.
func (f *FakeCatalog) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// SearchRequests counts requests to any search page.
func (f *FakeCatalog) SearchRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for path, c := range f.requests {
		if strings.HasPrefix(path, "/so/") {
			n += c
		}
	}
	return n
}

// LastKeyword is the keyword of the most recent search.
func (f *FakeCatalog) LastKeyword() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKeyword
}

// CoverBytes returns the bytes served for id's cover.
func (f *FakeCatalog) CoverBytes(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coverLocked(id)
}

func (f *FakeCatalog) coverLocked(id string) []byte {
	if b, ok := f.books[id]; ok && b.Cover != nil {
		return b.Cover
	}
	if data, ok := f.defaultCovers[id]; ok {
		return data
	}
	data := PNG(len(f.defaultCovers) + 2)
	f.defaultCovers[id] = data
	return data
}

func (f *FakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.requests[path]++

	switch {
	case strings.HasPrefix(path, "/so/") && strings.HasSuffix(path, ".html"):
		f.lastKeyword = strings.TrimSuffix(strings.TrimPrefix(path, "/so/"), ".html")
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(f.searchPage()))

	case strings.HasPrefix(path, "/book/"):
		id := strings.Trim(strings.TrimPrefix(path, "/book/"), "/")
		b, ok := f.books[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(detailPage(b)))

	case strings.HasPrefix(path, "/covers/"):
		if code := f.coverStatus[path]; code != 0 {
			w.WriteHeader(code)
			return
		}
		id := strings.Trim(strings.TrimPrefix(path, "/covers/"), "/")
		if _, ok := f.books[id]; !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(f.coverLocked(id))

	default:
		http.NotFound(w, r)
	}
}

func (f *FakeCatalog) searchPage() string {
	ids := f.order
	if f.hasResults {
		ids = f.results
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><div id="result-list"><ul>`)
	for _, id := range ids {
		book, ok := f.books[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, `<li class="res-book-item" data-bid="%s">`, id)
		fmt.Fprintf(&b, `<div class="book-img-box"><img src="//bookcover.example/%s/150"></div>`, id)
		fmt.Fprintf(&b, `<h3 class="book-info-title"><a title="%s在线阅读">%s</a></h3>`,
			html.EscapeString(book.Title), html.EscapeString(book.Title))
		b.WriteString(`<p class="author">`)
		for _, a := range book.Authors {
			fmt.Fprintf(&b, `<a class="name">%s</a>`, html.EscapeString(a))
		}
		b.WriteString(`</p></li>`)
	}
	if len(ids) == 0 {
		b.WriteString(`</ul></div><div class="no-result">没有找到</div></body></html>`)
		return b.String()
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func detailPage(b FakeBook) string {
	var s strings.Builder
	s.WriteString(`<!DOCTYPE html><html><head>`)
	fmt.Fprintf(&s, `<meta property="og:novel:book_name" content="%s">`, html.EscapeString(b.Title))
	if len(b.Authors) > 0 {
		fmt.Fprintf(&s, `<meta property="og:novel:author" content="%s">`, html.EscapeString(b.Authors[0]))
	}
	if b.Published != "" {
		fmt.Fprintf(&s, `<meta itemprop="datePublished" content="%s">`, b.Published)
	}
	s.WriteString(`</head><body>`)
	if len(b.Tags) > 0 {
		s.WriteString(`<p class="all-label">`)
		for _, tag := range b.Tags {
			fmt.Fprintf(&s, `<a>%s</a>`, html.EscapeString(tag))
		}
		s.WriteString(`</p>`)
	}
	if whole, frac, ok := strings.Cut(b.Score, "."); b.Score != "" {
		fmt.Fprintf(&s, `<span id="score1">%s</span>`, whole)
		if ok {
			fmt.Fprintf(&s, `<span id="score2">%s</span>`, frac)
		}
	}
	if b.Intro != "" {
		fmt.Fprintf(&s, `<p id="book-intro-detail">%s</p>`, html.EscapeString(b.Intro))
	}
	s.WriteString(`</body></html>`)
	return s.String()
}

// PNG encodes a small solid image whose colour depends on seed, so different
// seeds give different bytes.
func PNG(seed int) []byte {
	img := imaging.New(4+seed%4, 4, color.NRGBA{R: uint8(seed * 37), G: uint8(seed * 11), B: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
