package cdpcontrol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBrowser serves just enough of the DevTools HTTP and websocket
// protocol for attach + Runtime.evaluate.
type fakeBrowser struct {
	mu      sync.Mutex
	pages   []map[string]any
	hrefs   map[string]string // sessionID -> href
	attach  int
	methods []string
}

func (b *fakeBrowser) setPages(pages ...map[string]any) {
	b.mu.Lock()
	b.pages = pages
	b.mu.Unlock()
}

func (b *fakeBrowser) pageURL(targetID string) string {
	for _, p := range b.pages {
		if p["id"] == targetID {
			return p["url"].(string)
		}
	}
	return ""
}

func newFakeBrowser(t *testing.T) (*fakeBrowser, *httptest.Server) {
	t.Helper()
	b := &fakeBrowser{hrefs: map[string]string{}}
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/fake"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(b.pages)
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var msg struct {
				ID        int64           `json:"id"`
				Method    string          `json:"method"`
				SessionID string          `json:"sessionId"`
				Params    json.RawMessage `json:"params"`
			}
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			b.mu.Lock()
			b.methods = append(b.methods, msg.Method)
			var result any = map[string]any{}
			switch msg.Method {
			case "Target.attachToTarget":
				var p struct {
					TargetID string `json:"targetId"`
				}
				_ = json.Unmarshal(msg.Params, &p)
				b.attach++
				sid := "session-" + p.TargetID
				b.hrefs[sid] = p.TargetID
				result = map[string]any{"sessionId": sid}
			case "Runtime.evaluate":
				href := b.pageURL(b.hrefs[msg.SessionID])
				env, _ := json.Marshal(map[string]any{"ok": true, "data": map[string]string{"href": href}})
				result = map[string]any{"result": map[string]any{"type": "string", "value": string(env)}}
			}
			b.mu.Unlock()
			resp, _ := json.Marshal(map[string]any{"id": msg.ID, "sessionId": msg.SessionID, "result": result})
			if err := wsutil.WriteServerText(conn, resp); err != nil {
				return
			}
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func TestLocationOverRawCDP(t *testing.T) {
	b, srv := newFakeBrowser(t)
	b.setPages(
		map[string]any{"id": "other", "type": "page", "url": "https://example.com/"},
		map[string]any{"id": "yt", "type": "page", "url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
	)

	c := NewClient(srv.URL, "youtube.com", 2*time.Second)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	href, err := c.Location(ctx)
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if href != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("Location() = %q", href)
	}

	// The watched tab leaves the site; it stays watched.
	b.setPages(
		map[string]any{"id": "other", "type": "page", "url": "https://example.com/"},
		map[string]any{"id": "yt", "type": "page", "url": "https://example.org/elsewhere"},
	)
	href, err = c.Location(ctx)
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if href != "https://example.org/elsewhere" {
		t.Fatalf("Location() = %q; want the watched tab's new URL", href)
	}

	b.mu.Lock()
	attaches := b.attach
	b.mu.Unlock()
	if attaches != 1 {
		t.Fatalf("attach count = %d; want session reuse", attaches)
	}
}
