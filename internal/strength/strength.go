// Package strength scores password quality. It is advisory only and has no
// dependency on the rest of diarylock, so a UI can preview a password before
// committing to a lock.
package strength

import (
	"unicode"
	"unicode/utf8"
)

const (
	MinLength    = 8
	StrongLength = 12
	MaxScore     = 4
	StrongScore  = 3

	criteriaCount = 6
)

// Feedback messages, in the order they are reported
const (
	FeedbackMinLength    = "Use at least 8 characters"
	FeedbackStrongLength = "Use 12 or more characters for a stronger password"
	FeedbackLowercase    = "Add lowercase letters"
	FeedbackUppercase    = "Add uppercase letters"
	FeedbackDigit        = "Add numbers"
	FeedbackSymbol       = "Add symbols"
)

// Result is the outcome of scoring a password
type Result struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
	IsStrong bool     `json:"isStrong"`
}

// Label returns a human-readable name for the score
func (r Result) Label() string {
	return Label(r.Score)
}

// Score rates password on a 0..4 scale. One point is awarded for each of:
// length >= 8, length >= 12, lowercase, uppercase, digit and symbol. The
// tally is then scaled down to 0..4.
func Score(password string) Result {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	length := utf8.RuneCountInString(password)
	tally := 0
	feedback := []string{}

	switch {
	case length < MinLength:
		feedback = append(feedback, FeedbackMinLength)
	case length < StrongLength:
		tally++
		feedback = append(feedback, FeedbackStrongLength)
	default:
		tally += 2
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{hasLower, FeedbackLowercase},
		{hasUpper, FeedbackUppercase},
		{hasDigit, FeedbackDigit},
		{hasSymbol, FeedbackSymbol},
	}
	for _, c := range checks {
		if c.ok {
			tally++
			continue
		}
		feedback = append(feedback, c.msg)
	}

	score := tally * MaxScore / criteriaCount
	return Result{
		Score:    score,
		Feedback: feedback,
		IsStrong: score >= StrongScore,
	}
}

// Label maps a score to weak, fair, good or strong
func Label(score int) string {
	switch {
	case score >= 4:
		return "strong"
	case score == 3:
		return "good"
	case score == 2:
		return "fair"
	default:
		return "weak"
	}
}
