package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var historyArgs = []string{
	"512/2023", "MHPU010012342023", "3", "N", "C", "1", "2", "1010101", "party",
}

func TestViewHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "home/viewHistory", r.URL.Query().Get("p"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "512/2023", r.PostFormValue("case_no"))
		assert.Equal(t, "MHPU010012342023", r.PostFormValue("cino"))
		assert.Equal(t, "1010101", r.PostFormValue("court_complex_code"))
		assert.Equal(t, "party", r.PostFormValue("search_by"))
		writeJSON(w, map[string]any{"data_list": "<table>case</table>"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	html, err := c.ViewHistory(context.Background(), historyArgs)
	require.NoError(t, err)
	assert.Equal(t, "<table>case</table>", html)
}

func TestViewHistoryTooFewArgs(t *testing.T) {
	c := newTestClient(t, httptest.NewServer(http.NotFoundHandler()))
	_, err := c.ViewHistory(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestViewBusiness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "home/viewBusiness", r.URL.Query().Get("p"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3", r.PostFormValue("court_code"))
		assert.Equal(t, "undefined", r.PostFormValue("dist_code"))
		assert.Equal(t, "cnr", r.PostFormValue("search_by"))
		assert.Equal(t, "0", r.PostFormValue("srno"))
		writeJSON(w, map[string]any{"data_list": "<table><tr><td>Business</td><td>x</td><td>Adjourned</td></tr></table>"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	args := []string{"3", "x", "10-04-2023", "512", "1", "N", "10-04-2023", "7", "NC1", "x", ""}
	html, err := c.ViewBusiness(context.Background(), args)
	require.NoError(t, err)
	assert.Contains(t, html, "Adjourned")
}

func TestDownloadPDFFlow(t *testing.T) {
	var generated bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("p") == "casestatus/index":
			http.SetCookie(w, &http.Cookie{Name: "SERVICES_SESSID", Value: "sess-9"})
			w.Write([]byte(`<input name="app_token" value="tok">`))
		case r.URL.Query().Get("p") == "home/display_pdf":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "order1.pdf", r.PostFormValue("filename"))
			generated = true
			writeJSON(w, map[string]any{"status": 1})
		case r.URL.Path == "/reports/sess-9.pdf":
			w.Write([]byte("%PDF-1.4 fake"))
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.GeneratePDF(context.Background(), []string{"v", "cv", "3", "order1.pdf", "A"}))
	assert.True(t, generated)

	data, err := c.DownloadPDF(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(data), "%PDF")
}

func TestDownloadPDFRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "casestatus/index" {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-2"})
			w.Write([]byte(`<input name="app_token" value="tok">`))
			return
		}
		w.Write([]byte("<html>render failed</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	_, err = c.DownloadPDF(context.Background())
	assert.Error(t, err)
}

func TestDownloadPDFNoSessionCookie(t *testing.T) {
	c := newTestClient(t, httptest.NewServer(http.NotFoundHandler()))
	_, err := c.DownloadPDF(context.Background())
	assert.ErrorIs(t, err, ErrNoSessionCookie)
}
