package features

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kalambet/sentinel/internal/activity"
)

var (
	nonWordChars  = regexp.MustCompile(`[^\pL\pN\s']+`)
	sentenceSplit = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// tokenize lower-cases, strips diacritics and splits text into word tokens.
// Apostrophes are kept so contractions stay single tokens.
func tokenize(text string) []string {
	// the transformer is stateful, so build one per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonWordChars.ReplaceAllString(text, " "))
	normalized, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "error", err)
		normalized = bare
	}
	fields := strings.Fields(normalized)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

type textStats struct {
	items      int // authored items with at least one word
	words      int
	letters    int
	unique     map[string]struct{}
	sentences  int
	questions  int
	phonetic   int
	articles   int
	articleErr int
	formal     int
	informal   int
	graphemes  int
	emoji      int
}

func extractLinguistic(v Vector, samples []activity.Sample) {
	st := textStats{unique: make(map[string]struct{})}
	for _, s := range samples {
		st.add(s.Text())
	}

	v.set(AvgWordCount, ratio(float64(st.words), float64(st.items)))
	v.set(AvgWordLength, ratio(float64(st.letters), float64(st.words)))
	v.set(AvgSentenceLength, ratio(float64(st.words), float64(st.sentences)))
	v.set(VocabularyRichness, ratio(float64(len(st.unique)), float64(st.words)))
	v.set(PhoneticErrorScore, ratio(float64(st.phonetic), float64(st.words)))
	v.set(ArticleErrorRate, clamp01(ratio(float64(st.articleErr), float64(st.articles))))
	v.set(FormalityScore, ratio(float64(st.formal), float64(st.formal+st.informal)))
	v.set(EmojiDensity, ratio(float64(st.emoji), float64(st.graphemes)))
	v.set(QuestionRatio, ratio(float64(st.questions), float64(st.sentences)))
}

func (st *textStats) add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	tokens := tokenize(text)
	if len(tokens) > 0 {
		st.items++
	}
	st.words += len(tokens)
	for _, t := range tokens {
		st.unique[t] = struct{}{}
		st.letters += utf8.RuneCountInString(strings.ReplaceAll(t, "'", ""))
		if formalMarkers[t] {
			st.formal++
		}
		if informalMarkers[t] {
			st.informal++
		}
	}
	st.phonetic += countPhrases(tokens)
	articles, errs := articleErrors(tokens)
	st.articles += articles
	st.articleErr += errs

	for _, seg := range sentenceSplit.FindAllString(text, -1) {
		seg = strings.TrimSpace(seg)
		if !strings.ContainsFunc(seg, isWordRune) {
			continue
		}
		st.sentences++
		if strings.HasSuffix(seg, "?") {
			st.questions++
		}
	}

	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		st.graphemes++
		if isEmoji(gr.Runes()[0]) {
			st.emoji++
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// isEmoji checks whether a grapheme cluster starts with a pictographic rune.
func isEmoji(r rune) bool {
	return (r >= 0x1F000 && r <= 0x1FFFF) || (r >= 0x2600 && r <= 0x27BF)
}

func countPhrases(tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	joined := " " + strings.Join(tokens, " ") + " "
	n := 0
	for _, p := range confusedPhrases {
		n += strings.Count(joined, " "+p+" ")
	}
	return n
}

// articleErrors returns the number of determiner positions examined and the
// number judged wrong: a/an mismatches, doubled determiners, and bare
// singular nouns after a preposition.
func articleErrors(tokens []string) (seen, errs int) {
	for i, t := range tokens {
		var next string
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		switch {
		case determiners[t]:
			seen++
			switch {
			case next == "":
			case determiners[next]:
				errs++
			case t == "a" && vowelSound(next):
				errs++
			case t == "an" && !vowelSound(next) && isLetterStart(next):
				errs++
			}
		case bareNounPrepositions[t] && determinerNouns[next]:
			seen++
			errs++
		}
	}
	return seen, errs
}

func isLetterStart(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsLetter(r)
}

func vowelSound(w string) bool {
	for _, p := range silentH {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	if w == "" || !strings.ContainsRune("aeiou", rune(w[0])) {
		return false
	}
	for _, p := range consonantSoundPrefixes {
		if strings.HasPrefix(w, p) {
			return false
		}
	}
	return true
}
