package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"absen/internal/captcha"
)

type solverFunc func(ctx context.Context, image []byte) (int, error)

func (f solverFunc) Solve(ctx context.Context, image []byte) (int, error) { return f(ctx, image) }

func fixedSolver(answer int) Solver {
	return solverFunc(func(context.Context, []byte) (int, error) { return answer, nil })
}

// fakePortal imitates the portal's login flow and records what it saw.
type fakePortal struct {
	mu           sync.Mutex
	answer       string
	password     string
	loginCookies []string
	submits      int
	dashboard    string
	pages        map[string]string
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.loginCookies = append(p.loginCookies, r.Header.Get("Cookie"))
		p.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-1"})
		_, _ = w.Write([]byte(loginForm))
	})
	mux.HandleFunc("/gen_cap.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "" {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("PNG"))
	})
	mux.HandleFunc("/cekadm.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		p.submits++
		p.mu.Unlock()
		if r.PostForm.Get("kdc") != p.answer || r.PostForm.Get("txPass") != p.password {
			_, _ = w.Write([]byte(`<div class="alert-danger">Password atau kode salah</div>`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth", Value: "ok"})
		w.Header().Set("Location", "index.php")
		w.WriteHeader(http.StatusFound)
		_, _ = w.Write([]byte(p.dashboard))
	})
	mux.HandleFunc("/kuliah/", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("auth"); err != nil || ck.Value != "ok" {
			http.Redirect(w, r, "/login.php", http.StatusFound)
			return
		}
		body, ok := p.pages[r.URL.RequestURI()]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func newTestClient(t *testing.T, p *fakePortal, solver Solver) *Client {
	t.Helper()
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, solver, nil)
	c.pacer = Pacer{}
	return c
}

var _ Solver = (*captcha.Solver)(nil)
