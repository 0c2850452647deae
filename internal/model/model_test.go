package model

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleExam() Exam {
	return Exam{
		Title:           "Algebra Midterm",
		Subject:         "Algebra",
		TotalScore:      20,
		DurationMinutes: 45,
		Sections: []Section{
			{
				Title: "Part I: Multiple Choice",
				Questions: []Question{
					{ID: 1, Type: MultipleChoice, Content: "Solve $x+1=2$", Options: []string{"$0$", "$1$", "$2$", "$3$"}, Answer: "B", Explanation: "$x=1$", Score: 5},
					{ID: 2, Type: TrueFalse, Content: "$2>1$", Answer: "True", Explanation: "obvious", Score: 5},
				},
			},
			{
				Title:       "Part II",
				Description: "Show your work.",
				Questions: []Question{
					{ID: 3, Type: Essay, Content: "Prove it.", Answer: "...", Explanation: "...", Score: 10},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(e *Exam)
		wantField string
	}{
		{"valid", func(e *Exam) {}, ""},
		{"missing title", func(e *Exam) { e.Title = "" }, "title"},
		{"zero score", func(e *Exam) { e.Sections[0].Questions[1].Score = 0 }, "sections[0].questions[1].score"},
		{"negative score", func(e *Exam) { e.Sections[1].Questions[0].Score = -2 }, "sections[1].questions[0].score"},
		{"unknown type", func(e *Exam) { e.Sections[0].Questions[0].Type = "Matching" }, "sections[0].questions[0].type"},
		{"choice without options", func(e *Exam) { e.Sections[0].Questions[0].Options = nil }, "sections[0].questions[0].options"},
		{"options on essay", func(e *Exam) { e.Sections[1].Questions[0].Options = []string{"a"} }, "sections[1].questions[0].options"},
		{"empty options on true/false", func(e *Exam) { e.Sections[0].Questions[1].Options = []string{} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleExam()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ie *InvariantError
			if !errors.As(err, &ie) {
				t.Fatalf("Validate() = %v, want *InvariantError", err)
			}
			if ie.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ie.Field, tt.wantField)
			}
		})
	}
}

func TestScoreMismatch(t *testing.T) {
	e := sampleExam()
	if got := e.ScoreSum(); got != 20 {
		t.Fatalf("ScoreSum() = %v, want 20", got)
	}
	if e.ScoreMismatch() {
		t.Error("expected no mismatch when total equals sum")
	}
	e.TotalScore = 20.5
	if e.ScoreMismatch() {
		t.Error("half a point should be tolerated")
	}
	e.TotalScore = 100
	if !e.ScoreMismatch() {
		t.Error("expected mismatch for total 100 vs sum 20")
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := sampleExam()
	c := e.Clone()
	c.Sections[0].Questions[0].Options[0] = "changed"
	c.Sections[0].Title = "changed"
	if e.Sections[0].Questions[0].Options[0] == "changed" {
		t.Error("clone shares options slice with original")
	}
	if e.Sections[0].Title == "changed" {
		t.Error("clone shares sections slice with original")
	}
}

func TestQuestionCount(t *testing.T) {
	if got := sampleExam().QuestionCount(); got != 3 {
		t.Errorf("QuestionCount() = %d, want 3", got)
	}
}

func TestExamFileFormats(t *testing.T) {
	dir := t.TempDir()
	e := sampleExam()
	e.ID = "abc123def"
	e.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, name := range []string{"exam.json", "exam.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := SaveExamFile(path, e); err != nil {
				t.Fatalf("SaveExamFile: %v", err)
			}
			got, err := LoadExamFile(path)
			if err != nil {
				t.Fatalf("LoadExamFile: %v", err)
			}
			if !got.CreatedAt.Equal(e.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
			}
			got.CreatedAt = e.CreatedAt
			if !reflect.DeepEqual(got, e) {
				t.Errorf("loaded exam differs:\n got %+v\nwant %+v", got, e)
			}
		})
	}
}

func TestLoadExamFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	e := sampleExam()
	e.Sections[0].Questions[0].Score = 0
	if err := SaveExamFile(path, e); err != nil {
		t.Fatalf("SaveExamFile: %v", err)
	}
	if _, err := LoadExamFile(path); err == nil || !strings.Contains(err.Error(), "score") {
		t.Errorf("LoadExamFile() error = %v, want score violation", err)
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		title, want string
	}{
		{"Algebra Midterm", "Algebra Midterm.pdf"},
		{"a/b\\c:d", "a_b_c_d.pdf"},
		{"  ", "exam.pdf"},
		{"..", "exam.pdf"},
		{"期中考试", "期中考试.pdf"},
	}
	for _, tt := range tests {
		if got := SafeFileName(tt.title, "exam", ".pdf"); got != tt.want {
			t.Errorf("SafeFileName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
