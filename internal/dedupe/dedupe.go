// Package dedupe identifies the same vehicle posted several times across
// sites and passes, and keeps the best copy of each.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vigiauto/vigiauto/internal/lexical"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/parse"
)

const (
	titleKeyLen  = 100
	maxKeywords  = 3
	mileageRound = 1000
)

// stopwords excluded from model-keyword extraction: generic listing filler
// that carries no identity.
var stopwords = map[string]struct{}{
	"occasion": {}, "vends": {}, "vend": {}, "vente": {}, "voiture": {},
	"auto": {}, "vehicule": {}, "tbe": {}, "etat": {}, "bon": {},
	"tres": {}, "avec": {}, "pour": {}, "les": {}, "des": {},
}

// Fingerprint computes the stable identity hash of a listing: folded title
// prefix, price, year, mileage rounded to the nearest 1,000, source and up
// to three model keywords taken from the title after stripping the brand.
// Non-key fields (image, city, score) never influence it.
func Fingerprint(l *listing.Listing) string {
	title := parse.FoldASCII(l.Title)
	if len(title) > titleKeyLen {
		title = title[:titleKeyLen]
	}

	price, year, mileage := -1, -1, -1
	if l.Price != nil {
		price = *l.Price
	}
	if l.Year != nil {
		year = *l.Year
	}
	if l.Mileage != nil {
		mileage = (*l.Mileage + mileageRound/2) / mileageRound
	}

	key := fmt.Sprintf("%s|%d|%d|%d|%s|%s",
		title, price, year, mileage, strings.ToLower(l.Source),
		strings.Join(ModelKeywords(l.Title), " "))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// ModelKeywords extracts up to three significant tokens from the title after
// stripping any known brand name.
func ModelKeywords(title string) []string {
	folded := parse.FoldASCII(title)
	for _, b := range lexical.Brands {
		folded = strings.ReplaceAll(folded, b, " ")
	}
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.')
	})
	var out []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// Dedupe merges duplicate listings, keeping for each fingerprint the copy
// with the higher score, then the higher completeness, then the higher base
// match score. Score and completeness measure different failure modes, so
// the tie-break is a chain, not a single metric. The operation is
// idempotent and preserves first-seen ordering of surviving listings.
func Dedupe(ls []listing.Listing) []listing.Listing {
	if len(ls) <= 1 {
		return ls
	}

	order := make([]string, 0, len(ls))
	best := make(map[string]listing.Listing, len(ls))

	for _, l := range ls {
		fp := Fingerprint(&l)
		cur, seen := best[fp]
		if !seen {
			order = append(order, fp)
			best[fp] = l
			continue
		}
		if better(&l, &cur) {
			best[fp] = l
		}
	}

	out := make([]listing.Listing, 0, len(order))
	for _, fp := range order {
		out = append(out, best[fp])
	}
	return out
}

func better(a, b *listing.Listing) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ca, cb := a.Completeness(), b.Completeness()
	if ca != cb {
		return ca > cb
	}
	return base(a) > base(b)
}

func base(l *listing.Listing) float64 {
	if l.BaseScore == nil {
		return -1
	}
	return *l.BaseScore
}
