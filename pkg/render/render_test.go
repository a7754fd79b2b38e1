package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// minimalPDF assembles a valid one-page PDF with a correct xref table.
func minimalPDF(t *testing.T) []byte {
	t.Helper()
	var sb strings.Builder
	offsets := make([]int, 0, 3)
	write := func(s string) {
		sb.WriteString(s)
	}
	object := func(s string) {
		offsets = append(offsets, sb.Len())
		write(s)
	}
	write("%PDF-1.4\n")
	object("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	object("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	object("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n")
	xrefPos := sb.Len()
	write("xref\n0 4\n")
	write("0000000000 65535 f \n")
	for _, off := range offsets {
		write(fmt.Sprintf("%010d 00000 n \n", off))
	}
	write("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n")
	write(fmt.Sprintf("%d\n%%%%EOF\n", xrefPos))
	return []byte(sb.String())
}

func TestRenderReturnsCheckedPDF(t *testing.T) {
	pdfBytes := minimalPDF(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/render" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdfBytes)
	}))
	defer srv.Close()

	client, err := Dial(srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	got, err := client.Render(context.Background(), "<html><body>hi</body></html>")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(got) != len(pdfBytes) {
		t.Fatalf("expected %d bytes, got %d", len(pdfBytes), len(got))
	}
}

func TestRenderRejectsInvalidPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a pdf"))
	}))
	defer srv.Close()

	client, err := Dial(srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Render(context.Background(), "<html></html>"); err == nil {
		t.Fatalf("expected error for invalid pdf output")
	}
}

func TestRenderSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"browser pool exhausted"}`))
	}))
	defer srv.Close()

	client, err := Dial(srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.Render(context.Background(), "<html></html>")
	if err == nil || !strings.Contains(err.Error(), "browser pool exhausted") {
		t.Fatalf("expected service error message, got %v", err)
	}
}

func TestBundleHTMLIncludesLetterAndArtifacts(t *testing.T) {
	html, err := BundleHTML(BundlePage{
		ClientName: "Dana",
		Horizon:    HumanHorizon("90_days"),
		Letter:     "Dear Dana,",
		Artifacts: []ArtifactPage{
			{Title: "Decision Snapshot", Content: "Snapshot body"},
			{Title: "Action Plan", Content: "Plan body"},
		},
	})
	if err != nil {
		t.Fatalf("bundle html: %v", err)
	}
	for _, want := range []string{"Dana", "90-day", "Dear Dana,", "Decision Snapshot", "Action Plan"} {
		if !strings.Contains(html, want) {
			t.Fatalf("bundle html missing %q", want)
		}
	}
}
