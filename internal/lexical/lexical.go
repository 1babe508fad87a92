// Package lexical scans listing text for vocabulary signals: distress and
// professional-seller keywords in titles, vehicle brand mentions, and
// explicit negative statements about the roadworthiness inspection.
package lexical

import (
	"regexp"
	"strings"

	"github.com/vigiauto/vigiauto/internal/parse"
)

// Match represents occurrences of one term within a text, with the
// surrounding sentences for explainability.
type Match struct {
	Term      string   `json:"term"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences,omitempty"`
}

// DistressTerms signal a seller in a hurry. Hits lower the listing score.
var DistressTerms = []string{
	"urgent",
	"cash",
	"vente rapide",
	"depart etranger",
	"cause demenagement",
	"prix a debattre rapidement",
	"premier arrive",
}

// ProTerms signal a professional seller. Noted but never penalized.
var ProTerms = []string{
	"garage",
	"professionnel",
	"concession",
	"garantie constructeur",
	"tva recuperable",
	"reprise possible",
}

// Brands is the lexicon used to spot brand mentions in titles and
// descriptions. Folded ASCII, lowercase.
var Brands = []string{
	"abarth", "alfa romeo", "audi", "bmw", "citroen", "cupra", "dacia",
	"ds", "fiat", "ford", "honda", "hyundai", "jeep", "kia", "land rover",
	"lexus", "mazda", "mercedes", "mini", "mitsubishi", "nissan", "opel",
	"peugeot", "porsche", "renault", "seat", "skoda", "smart", "suzuki",
	"tesla", "toyota", "volkswagen", "volvo",
}

// ScanTerms searches content for each term (diacritics-insensitive) and
// returns the matches with their surrounding sentences. Terms are expected
// to already be folded ASCII.
func ScanTerms(content string, terms []string) []Match {
	if content == "" || len(terms) == 0 {
		return nil
	}

	folded := parse.FoldASCII(content)
	sentences := splitSentences(content)
	foldedSentences := make([]string, len(sentences))
	for i, s := range sentences {
		foldedSentences[i] = parse.FoldASCII(s)
	}

	var out []Match
	for _, term := range terms {
		count := strings.Count(folded, term)
		if count == 0 {
			continue
		}
		var matched []string
		for i, fs := range foldedSentences {
			if strings.Contains(fs, term) {
				matched = append(matched, sentences[i])
			}
		}
		out = append(out, Match{Term: term, Count: count, Sentences: matched})
	}
	return out
}

// FindBrands returns the distinct brands mentioned in the text, in lexicon
// order. Matching is word-bounded so "ds" does not fire inside "poids".
func FindBrands(text string) []string {
	folded := " " + parse.FoldASCII(text) + " "
	var out []string
	for _, b := range Brands {
		if strings.Contains(folded, " "+b+" ") {
			out = append(out, b)
		}
	}
	return out
}

var noInspectionRe = regexp.MustCompile(`(sans (controle technique|ct)\b|\b(controle technique|ct) (expire|perime|non valide|a prevoir|a refaire)|pas de (controle technique|ct)\b)`)

// InspectionMissing reports whether the text explicitly states that the
// roadworthiness inspection is absent or expired, and returns the sentence
// carrying the statement. Silence about the inspection is not a signal.
func InspectionMissing(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	for _, s := range splitSentences(text) {
		if noInspectionRe.MatchString(parse.FoldASCII(s)) {
			return true, s
		}
	}
	return false, ""
}

// splitSentences naively splits text on '.', '!' and '?' while keeping the
// delimiter with its sentence.
func splitSentences(text string) []string {
	if len(text) == 0 {
		return nil
	}
	sentences := make([]string, 0, len(text)/50+1)
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			for end < len(text) && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
				end++
			}
			if s := strings.TrimSpace(text[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
