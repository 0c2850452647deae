package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/pavelanni/examforge/internal/app"
	"github.com/pavelanni/examforge/internal/export"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/ingest"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("zh"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeGenerator struct {
	exam  model.Exam
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, model.GenerationRequest, jsonschema.Definition) (model.Exam, error) {
	f.calls++
	return f.exam.Clone(), f.err
}

type imageCapturer struct{}

func (imageCapturer) Capture(context.Context, export.Region, export.Options) (export.Capture, error) {
	return export.Capture{Image: image.NewRGBA(image.Rect(0, 0, 190, 400))}, nil
}

func geometryExam() model.Exam {
	return model.Exam{
		Title: "Geometry Quiz", Subject: "Geometry", TotalScore: 10, DurationMinutes: 40,
		Sections: []model.Section{{
			Title: "Part I",
			Questions: []model.Question{
				{ID: 1, Type: model.MultipleChoice, Content: "Angle sum of a triangle is $180^\\circ$?", Options: []string{"yes", "no"}, Answer: "A", Explanation: "Euclid", Score: 4},
				{ID: 2, Type: model.ShortAnswer, Content: "Define a rhombus.", Answer: "Four equal sides", Explanation: "by definition", Score: 6},
			},
		}},
	}
}

type testServer struct {
	h      *Handler
	ctrl   *app.Controller
	store  *store.Store
	gen    *fakeGenerator
	router http.Handler
}

func newTestServer(t *testing.T, capturer export.Capturer, basePath string) *testServer {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gen := &fakeGenerator{exam: geometryExam()}
	ctrl := app.New(st, gen, nil, "zh")
	cfg := model.ServerConfig{IncludeAnswers: true, Lang: "zh", BasePath: basePath}
	h, err := New(ctrl, export.New(capturer, nil, nil), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("zh"))
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	return &testServer{h: h, ctrl: ctrl, store: st, gen: gen, router: r}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// csrfToken fetches a page and returns the token cookie it issued.
func (s *testServer) csrfToken(t *testing.T, path string) *http.Cookie {
	t.Helper()
	rec := s.do(httptest.NewRequest(http.MethodGet, path, nil))
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	t.Fatalf("GET %s issued no csrf cookie", path)
	return nil
}

type upload struct {
	name string
	data []byte
}

func uploadRequest(t *testing.T, path, token string, cookie *http.Cookie, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if token != "" {
		if err := mw.WriteField(csrfFieldName, token); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func formRequest(path, token string, cookie *http.Cookie) *http.Request {
	form := url.Values{csrfFieldName: {token}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func seedExam(t *testing.T, s *testServer) model.Exam {
	t.Helper()
	exam, err := s.ctrl.Generate(context.Background(), []model.UploadedAsset{{ID: "1", DisplayName: "ref.txt", Kind: model.AssetText, MimeType: "text/plain", Payload: "ref"}})
	if err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return exam
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, nil, "")
	seedExam(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/generate"`, `name="csrf_token"`, "Geometry Quiz", "共 2 题"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestGenerateRequiresCSRF(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	tests := []struct {
		name   string
		token  string
		cookie *http.Cookie
	}{
		{"no cookie", cookie.Value, nil},
		{"no form token", "", cookie},
		{"mismatched token", strings.Repeat("x", len(cookie.Value)), cookie},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(uploadRequest(t, "/generate", tt.token, tt.cookie, upload{"ref.txt", []byte("Subject: Geometry")}))
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", rec.Code)
			}
		})
	}
	if s.gen.calls != 0 {
		t.Errorf("generator must not run on rejected requests")
	}
}

func TestGenerateFlow(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	rec := s.do(uploadRequest(t, "/generate", cookie.Value, cookie,
		upload{"ref.txt", []byte("Subject: Geometry, 2 questions")},
		upload{"archive.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")},
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "exam-printable-content") || !strings.Contains(body, "Geometry Quiz") {
		t.Error("expected preview of the generated exam")
	}
	if !strings.Contains(body, "已跳过 archive.zip") {
		t.Error("expected notice for the skipped file")
	}
	if n, _ := s.store.Count(); n != 1 {
		t.Errorf("expected 1 stored exam, got %d", n)
	}
	if s.ctrl.ActiveID() == "" {
		t.Error("expected generated exam to be active")
	}
}

func TestGenerateWithoutUsableFiles(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	rec := s.do(uploadRequest(t, "/generate", cookie.Value, cookie, upload{"archive.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "请至少上传一个有效文件") {
		t.Error("expected no-files error on the page")
	}
	if s.gen.calls != 0 {
		t.Error("generator must not run without assets")
	}
}

func TestGenerateFailureKeepsCollection(t *testing.T) {
	s := newTestServer(t, nil, "")
	s.gen.err = &llm.GenerationError{Cause: llm.ErrEmptyResponse}
	cookie := s.csrfToken(t, "/")

	rec := s.do(uploadRequest(t, "/generate", cookie.Value, cookie, upload{"ref.txt", []byte("Subject: Geometry")}))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "试卷生成失败") {
		t.Error("expected generation failure notice")
	}
	if n, _ := s.store.Count(); n != 0 {
		t.Errorf("expected empty collection, got %d", n)
	}
}

func TestGenerateSkipsOversizedFile(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	huge := bytes.Repeat([]byte("a"), ingest.MaxFileSize+1)
	rec := s.do(uploadRequest(t, "/generate", cookie.Value, cookie,
		upload{"ref.txt", []byte("Subject: Geometry")},
		upload{"huge.txt", huge},
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %.200s", rec.Code, rec.Body.String())
	}
	if s.gen.calls != 1 {
		t.Errorf("expected one generation, got %d", s.gen.calls)
	}
	if !strings.Contains(rec.Body.String(), "已跳过 huge.txt") {
		t.Error("expected notice for the oversized file")
	}
	if n, _ := s.store.Count(); n != 1 {
		t.Errorf("expected 1 stored exam, got %d", n)
	}
}

func TestReadUploadBatchLimit(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	req := uploadRequest(t, "/generate", cookie.Value, cookie,
		upload{"a.txt", []byte("alpha")},
		upload{"b.txt", []byte("bravo")},
		upload{"c.txt", []byte("charlie")},
		upload{"d.txt", []byte("delta")},
	)
	mr, status, err := checkCSRF(req)
	if err != nil {
		t.Fatalf("checkCSRF() = %d, %v", status, err)
	}
	req = req.WithContext(context.WithValue(req.Context(), uploadKey{}, mr))

	kept, skipped, err := readUpload(req, 15)
	if err != nil {
		t.Fatalf("readUpload() error: %v", err)
	}
	if len(kept) != 3 || len(skipped) != 1 {
		t.Fatalf("kept %d, skipped %d; want 3 and 1", len(kept), len(skipped))
	}
	if skipped[0].Name != "c.txt" || !errors.Is(skipped[0], ingest.ErrTooLarge) {
		t.Errorf("skipped = %v, want c.txt too large", skipped[0])
	}
}

func TestGenerateTokenMustPrecedeFiles(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "ref.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("Subject: Geometry"))
	mw.WriteField(csrfFieldName, cookie.Value)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	if rec := s.do(req); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if s.gen.calls != 0 {
		t.Error("generator must not run on rejected requests")
	}
}

func TestGenerateBusy(t *testing.T) {
	s := newTestServer(t, nil, "")
	cookie := s.csrfToken(t, "/")

	s.h.generating.Lock()
	defer s.h.generating.Unlock()
	rec := s.do(uploadRequest(t, "/generate", cookie.Value, cookie, upload{"ref.txt", []byte("Subject: Geometry")}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, nil, "")
	exam := seedExam(t, s)

	tests := []struct {
		query       string
		wantAnswers bool
	}{
		{"", true},
		{"?answers=1", true},
		{"?answers=0", false},
		{"?answers=bogus", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(httptest.NewRequest(http.MethodGet, "/exams/"+exam.ID+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			got := strings.Contains(rec.Body.String(), "region-answers")
			if got != tt.wantAnswers {
				t.Errorf("answers shown = %v, want %v", got, tt.wantAnswers)
			}
		})
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/exams/missing00", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown exam, got %d", rec.Code)
	}
}

func TestExportFallsBackToPrint(t *testing.T) {
	s := newTestServer(t, nil, "")
	exam := seedExam(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/exams/"+exam.ID+"/export?answers=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected print page, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "window.print()") || strings.Contains(body, "region-answers") {
		t.Error("expected self-printing page without answer key")
	}
}

func TestExportPDF(t *testing.T) {
	s := newTestServer(t, imageCapturer{}, "")
	exam := seedExam(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/exams/"+exam.ID+"/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "Geometry Quiz.pdf") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("expected PDF body")
	}
}

func TestExamJSON(t *testing.T) {
	s := newTestServer(t, nil, "")
	exam := seedExam(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/exams/"+exam.ID+"/json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got model.Exam
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != exam.ID || got.QuestionCount() != 2 {
		t.Errorf("unexpected exam %s with %d questions", got.ID, got.QuestionCount())
	}
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, nil, "")
	exam := seedExam(t, s)
	cookie := s.csrfToken(t, "/")

	rec := s.do(formRequest("/exams/"+exam.ID+"/delete", cookie.Value, cookie))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("expected redirect to /, got %q", loc)
	}
	if _, err := s.ctrl.Exam(exam.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected exam deleted, got %v", err)
	}

	rec = s.do(formRequest("/exams/"+exam.ID+"/delete", cookie.Value, cookie))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestBasePath(t *testing.T) {
	s := newTestServer(t, nil, "/zh")
	exam := seedExam(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/zh/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/zh/generate"`, `href="/zh/exams/` + exam.ID + `"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	cookie := s.csrfToken(t, "/zh/")
	if cookie.Path != "/zh/" {
		t.Errorf("expected cookie path /zh/, got %q", cookie.Path)
	}

	rec = s.do(formRequest("/zh/exams/"+exam.ID+"/delete", cookie.Value, cookie))
	if loc := rec.Header().Get("Location"); loc != "/zh/" {
		t.Errorf("expected redirect to /zh/, got %q", loc)
	}
}
