package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/yxzhu/wubiq/internal/model"
)

// newFormServer fakes the remote form: the prime page sets a session
// cookie, the captcha endpoint requires it, and the submit endpoint accepts
// exactly one code per session, replying in GB2312 like the real site.
func newFormServer(t *testing.T, correctCode string) *httptest.Server {
	t.Helper()

	writeGBK := func(w http.ResponseWriter, page string) {
		encoded, _, err := transform.String(simplifiedchinese.GBK.NewEncoder(), page)
		if err != nil {
			t.Fatalf("encode page: %v", err)
		}
		io.WriteString(w, encoded)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/query/wmhz1.asp", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ASPSESSIONID", Value: "abc123"})
		io.WriteString(w, "<html>form</html>")
	})
	mux.HandleFunc("/include/v.asp", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("ASPSESSIONID"); err != nil || c.Value == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("fake-captcha-bytes"))
	})
	mux.HandleFunc("/query/wmhz2.asp", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		char, _, err := transform.String(simplifiedchinese.GBK.NewDecoder(), values.Get("query_hz"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch {
		case char == "错":
			writeGBK(w, "<html>指定汉字错误</html>")
		case values.Get("yanzhengma") != correctCode:
			writeGBK(w, "<html>验证码错误</html>")
		default:
			writeGBK(w, `<table><tr><td>王码五笔字型86编码：</td><td>IPGF</td></tr></table>`)
		}
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Query.BaseURL = baseURL
	cfg.HTTP.RequestsPerSecond = 1000 // keep tests fast
	cfg.HTTP.Burst = 1000
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClientSubmitOutcomes(t *testing.T) {
	srv := newFormServer(t, "4607")
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	cases := []struct {
		name    string
		char    string
		code    string
		outcome Outcome
	}{
		{"accepted", "学", "4607", OutcomeAccepted},
		{"wrong captcha", "学", "1111", OutcomeWrongCaptcha},
		{"bad character", "错", "4607", OutcomeRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess, err := c.NewSession(ctx)
			if err != nil {
				t.Fatalf("new session: %v", err)
			}
			if _, err := c.FetchCaptcha(ctx, sess); err != nil {
				t.Fatalf("fetch captcha: %v", err)
			}

			outcome, page, err := c.Submit(ctx, sess, tc.char, tc.code)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if outcome != tc.outcome {
				t.Fatalf("expected outcome %d, got %d (page %q)", tc.outcome, outcome, page)
			}
			if outcome == OutcomeAccepted && !strings.Contains(page, "IPGF") {
				t.Fatalf("accepted page not decoded: %q", page)
			}
		})
	}
}

func TestSessionIsSingleUse(t *testing.T) {
	srv := newFormServer(t, "4607")
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	sess, err := c.NewSession(ctx)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if _, err := c.FetchCaptcha(ctx, sess); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := c.FetchCaptcha(ctx, sess); !errors.Is(err, model.ErrSessionUsed) {
		t.Fatalf("second fetch should fail with ErrSessionUsed, got %v", err)
	}

	if _, _, err := c.Submit(ctx, sess, "学", "4607"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, _, err := c.Submit(ctx, sess, "学", "4607"); !errors.Is(err, model.ErrSessionUsed) {
		t.Fatalf("second submit should fail with ErrSessionUsed, got %v", err)
	}
}

func TestClientFetchWithoutCookieFails(t *testing.T) {
	srv := newFormServer(t, "4607")
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	// A session that skipped priming has no cookie; the captcha endpoint
	// rejects it. Reach it through a sidestepped session to prove the jar
	// is what carries the binding.
	sess := &Session{client: srv.Client()}
	if _, err := c.FetchCaptcha(context.Background(), sess); err == nil {
		t.Fatal("expected captcha fetch without session cookie to fail")
	}
}

func TestEncodeFormGB2312(t *testing.T) {
	body, err := encodeForm([][2]string{{"query_hz", "学"}, {"ok", "查询"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// 学 is 0xD1 0xA7 in GB2312.
	if !strings.Contains(body, "query_hz=%D1%A7") {
		t.Fatalf("expected GB2312 percent-encoding, got %q", body)
	}
	if !strings.HasPrefix(body, "query_hz=") || !strings.Contains(body, "&ok=") {
		t.Fatalf("unexpected form layout: %q", body)
	}
}
