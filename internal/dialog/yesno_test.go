package dialog

import "testing"

func TestInterpret(t *testing.T) {
	t.Parallel()

	i := NewYesNoInterpreter([]string{"ja", "yes"}, []string{"nein", "no"})

	tests := []struct {
		text string
		want Answer
	}{
		{"ja", AnswerYes},
		{"Ja", AnswerYes},
		{"  ja  ", AnswerYes},
		{"ja!", AnswerYes},
		{"yes", AnswerYes},
		{"ja klar mein freund", AnswerAmbiguous},
		{"jawohl, das war super hilfreich", AnswerAmbiguous},
		{"nein", AnswerNo},
		{"Nein", AnswerNo},
		{"no", AnswerNo},
		{"nein danke", AnswerNo},
		{"nein!", AnswerNo},
		{"vielleicht", AnswerAmbiguous},
		{"notebook kaputt", AnswerAmbiguous},
		{"", AnswerAmbiguous},
		{"   ", AnswerAmbiguous},
		{"der drucker druckt wieder nicht", AnswerAmbiguous},
	}

	for _, tt := range tests {
		if got := i.Interpret(tt.text); got != tt.want {
			t.Errorf("Interpret(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
