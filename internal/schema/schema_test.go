package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/examforge/internal/model"
)

const validPayload = `{
  "title": "代数单元测试",
  "subject": "Algebra",
  "totalScore": 30,
  "durationMinutes": 40,
  "sections": [
    {
      "title": "Part I: Multiple Choice",
      "description": "Choose one.",
      "questions": [
        {"id": 7, "type": "Single Choice", "content": "Solve $2x=4$", "options": ["$1$", "$2$", "$3$", "$4$"], "answer": "B", "explanation": "$x=2$", "score": 5},
        {"id": 3, "type": "Single Choice", "content": "Solve $x-1=0$", "options": ["$0$", "$1$", "$2$", "$3$"], "answer": "B", "explanation": "$x=1$", "score": 5}
      ]
    },
    {
      "title": "Part II",
      "questions": [
        {"id": 1, "type": "True/False", "content": "$1<2$", "answer": "True", "explanation": "trivially", "score": 5, "options": []},
        {"id": 2, "type": "Essay", "content": "Triangle proof", "diagramSvg": "<svg viewBox=\"0 0 10 10\"></svg>", "answer": "...", "explanation": "...", "score": 15}
      ]
    }
  ]
}`

func TestParseValid(t *testing.T) {
	exam, err := Parse([]byte(validPayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if exam.ID != "" || !exam.CreatedAt.IsZero() {
		t.Error("parsed exam must not carry identity")
	}
	if len(exam.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(exam.Sections))
	}
	if exam.Sections[0].Title != "Part I: Multiple Choice" || exam.Sections[1].Title != "Part II" {
		t.Errorf("section order not preserved: %q, %q", exam.Sections[0].Title, exam.Sections[1].Title)
	}
	var ids []int
	for _, s := range exam.Sections {
		for _, q := range s.Questions {
			ids = append(ids, q.ID)
		}
	}
	if want := []int{7, 3, 1, 2}; !equalInts(ids, want) {
		t.Errorf("question order = %v, want %v", ids, want)
	}
	if got := exam.Sections[1].Questions[1].Diagram; !strings.HasPrefix(got, "<svg") {
		t.Errorf("diagram = %q", got)
	}
	if exam.Sections[0].Questions[0].Type != model.MultipleChoice {
		t.Errorf("type = %q", exam.Sections[0].Questions[0].Type)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseViolations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(m map[string]any)
		wantPath string
	}{
		{"missing score", func(m map[string]any) { delete(questionAt(m, 0, 1), "score") }, "$.sections[0].questions[1].score"},
		{"missing explanation", func(m map[string]any) { delete(questionAt(m, 1, 0), "explanation") }, "$.sections[1].questions[0].explanation"},
		{"missing subject", func(m map[string]any) { delete(m, "subject") }, "$.subject"},
		{"missing section questions", func(m map[string]any) { delete(sectionAt(m, 1), "questions") }, "$.sections[1].questions"},
		{"enum miss", func(m map[string]any) { questionAt(m, 0, 0)["type"] = "Multiple Choice" }, "$.sections[0].questions[0].type"},
		{"score as string", func(m map[string]any) { questionAt(m, 0, 0)["score"] = "5" }, "$.sections[0].questions[0].score"},
		{"fractional id", func(m map[string]any) { questionAt(m, 0, 0)["id"] = 1.5 }, "$.sections[0].questions[0].id"},
		{"null required", func(m map[string]any) { m["title"] = nil }, "$.title"},
		{"sections not array", func(m map[string]any) { m["sections"] = map[string]any{} }, "$.sections"},
		{"unexpected field", func(m map[string]any) { m["id"] = "abc" }, "$.id"},
		{"zero score", func(m map[string]any) { questionAt(m, 1, 1)["score"] = 0 }, "$.sections[1].questions[1].score"},
		{"choice without options", func(m map[string]any) { delete(questionAt(m, 0, 0), "options") }, "$.sections[0].questions[0].options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m map[string]any
			if err := json.Unmarshal([]byte(validPayload), &m); err != nil {
				t.Fatal(err)
			}
			tt.mutate(m)
			data, err := json.Marshal(m)
			if err != nil {
				t.Fatal(err)
			}
			_, err = Parse(data)
			if !errors.Is(err, ErrViolation) {
				t.Fatalf("Parse() = %v, want schema violation", err)
			}
			var ve *ViolationError
			if !errors.As(err, &ve) {
				t.Fatalf("error is not a *ViolationError: %T", err)
			}
			if ve.Path != tt.wantPath {
				t.Errorf("path = %q, want %q (reason %q)", ve.Path, tt.wantPath, ve.Reason)
			}
		})
	}
}

func sectionAt(m map[string]any, i int) map[string]any {
	return m["sections"].([]any)[i].(map[string]any)
}

func questionAt(m map[string]any, si, qi int) map[string]any {
	return sectionAt(m, si)["questions"].([]any)[qi].(map[string]any)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not json", `["array"]`, `{"title": "x"`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrViolation) {
			t.Errorf("Parse(%q) = %v, want schema violation", in, err)
		}
	}
}

func TestDefinitionMatchesModel(t *testing.T) {
	data, err := json.Marshal(&Exam)
	if err != nil {
		t.Fatalf("marshal definition: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"Single Choice"`, `"True/False"`, `"Short Answer"`, `"Essay"`, `"diagramSvg"`, `"additionalProperties":false`} {
		if !strings.Contains(s, want) {
			t.Errorf("definition JSON missing %s", want)
		}
	}
	q := Exam.Properties["sections"].Items.Properties["questions"].Items
	if got := strings.Join(q.Required, ","); got != "id,type,content,answer,score,explanation" {
		t.Errorf("question required = %s", got)
	}
	if got := strings.Join(Exam.Required, ","); got != "title,subject,sections,totalScore" {
		t.Errorf("exam required = %s", got)
	}
}
