package domain

import (
	"math"
	"regexp"
	"strings"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	// sentimentCutoff is the |score| above which a label leaves neutral.
	sentimentCutoff = 0.2
)

// sentimentWordRe splits on anything but letters, digits and underscore, so
// "#awesome" counts as "awesome".
var sentimentWordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "amazing": true, "awesome": true,
	"fantastic": true, "wonderful": true, "love": true, "best": true, "perfect": true,
	"brilliant": true, "outstanding": true, "superb": true, "incredible": true,
	"helpful": true, "useful": true, "valuable": true, "important": true,
	"interesting": true, "insightful": true,
}

var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "awful": true, "horrible": true, "worst": true,
	"poor": true, "disappointing": true, "hate": true, "useless": true, "broken": true,
	"failed": true, "error": true, "problem": true, "issue": true, "bug": true,
	"difficult": true, "confusing": true, "complicated": true, "frustrating": true,
	"annoying": true,
}

// AnalyzeSentiment scores text with a keyword lexicon.
// Score is (positive - negative) / matched words, rounded to two decimals.
// The label is decided on the unrounded score.
func AnalyzeSentiment(text string) Sentiment {
	words := sentimentWordRe.FindAllString(strings.ToLower(text), -1)

	var pos, neg int
	for _, w := range words {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return Sentiment{Label: SentimentNeutral, Score: 0}
	}

	score := float64(pos-neg) / float64(total)

	label := SentimentNeutral
	switch {
	case score > sentimentCutoff:
		label = SentimentPositive
	case score < -sentimentCutoff:
		label = SentimentNegative
	}
	return Sentiment{Label: label, Score: math.Round(score*100) / 100}
}
