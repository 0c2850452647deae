package i18n

import (
	"context"

	"github.com/pavelanni/examforge/internal/render"
)

// Labels returns the printed-document labels for the request language.
// Minutes and Points keep a %s verb for the number.
func Labels(ctx context.Context) render.Labels {
	verb := map[string]any{"Value": "%s"}
	return render.Labels{
		Subject:    T(ctx, "LabelSubject"),
		TotalScore: T(ctx, "LabelTotalScore"),
		Duration:   T(ctx, "LabelDuration"),
		Minutes:    Td(ctx, "LabelMinutes", verb),
		Points:     Td(ctx, "LabelPoints", verb),
		Identity: []string{
			T(ctx, "LabelName"),
			T(ctx, "LabelClass"),
			T(ctx, "LabelStudentID"),
		},
		EndMark:     T(ctx, "EndMark"),
		AnswerTitle: T(ctx, "AnswerTitle"),
		Explanation: T(ctx, "ExplanationLabel"),
	}
}
