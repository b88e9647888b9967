package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NotAnswered"); got != "not answered" {
		t.Errorf("T(NotAnswered) = %q, want 'not answered'", got)
	}
	if got := T(ctx, "GradingFailed"); got != "grading failed, needs manual review" {
		t.Errorf("T(GradingFailed) = %q", got)
	}
}

func TestTranslateChinese(t *testing.T) {
	ctx := initLang(t, "zh")

	if got := T(ctx, "NotAnswered"); got != "未作答" {
		t.Errorf("T(NotAnswered) = %q, want '未作答'", got)
	}
	if got := T(ctx, "GradingFailed"); got != "AI评分失败，请手动审核" {
		t.Errorf("T(GradingFailed) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsImported", 1); got != "1 question imported" {
		t.Errorf("Tp(QuestionsImported, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsImported", 5); got != "5 questions imported" {
		t.Errorf("Tp(QuestionsImported, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "CorrectAnswerIs", map[string]any{"Answer": "A,C"})
	if got != "The correct answer is: A,C" {
		t.Errorf("Td(CorrectAnswerIs) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallbackWithoutLocalizer(t *testing.T) {
	initLang(t, "en")

	if got := T(context.Background(), "NotAnswered"); got != "not answered" {
		t.Errorf("T without localizer = %q, want default language", got)
	}
}

func TestMatch(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh-CN,zh;q=0.9,en;q=0.8", "zh"},
		{"en-US", "en"},
		{"fr-FR", "en"},
		{"not a header;;;", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := Match(tt.header); got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(T(r.Context(), "NotAnswered")))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.String() != "未作答" {
		t.Errorf("expected Chinese body, got %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Language") != "zh" {
		t.Errorf("expected Content-Language zh, got %q", rec.Header().Get("Content-Language"))
	}
}
