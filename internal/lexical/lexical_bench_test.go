package lexical

import (
	"strings"
	"testing"
)

// benchmarkContent generates a realistic listing description of roughly
// the given size.
func benchmarkContent(size int) string {
	sb := strings.Builder{}
	sb.Grow(size)

	paragraphs := []string{
		"Vends Peugeot 308 1.2 PureTech 130 Allure, entretien à jour chez le concessionnaire.",
		"Vente urgente cause départ à l'étranger, prix à débattre rapidement.",
		"Contrôle technique OK, carnet d'entretien complet, distribution faite à 95 000 km.",
		"Véhicule de garage professionnel, garantie constructeur jusqu'en 2027, reprise possible.",
		"Quelques rayures d'usage, intérieur propre, non fumeur, pneus neufs à l'avant.",
	}

	for sb.Len() < size {
		for _, p := range paragraphs {
			sb.WriteString(p)
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

func BenchmarkScanTerms_ShortDescription(b *testing.B) {
	content := benchmarkContent(1024) // 1KB
	terms := DistressTerms

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ScanTerms(content, terms)
	}
}

func BenchmarkScanTerms_LongDescription(b *testing.B) {
	content := benchmarkContent(10 * 1024) // 10KB
	terms := DistressTerms

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ScanTerms(content, terms)
	}
}

func BenchmarkScanTerms_AllTerms(b *testing.B) {
	content := benchmarkContent(10 * 1024) // 10KB
	terms := append(append([]string{}, DistressTerms...), ProTerms...)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ScanTerms(content, terms)
	}
}

func BenchmarkFindBrands(b *testing.B) {
	content := benchmarkContent(4 * 1024)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		FindBrands(content)
	}
}

func BenchmarkInspectionMissing(b *testing.B) {
	content := benchmarkContent(4*1024) + " Vendu sans contrôle technique."

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		InspectionMissing(content)
	}
}

func BenchmarkSplitSentences(b *testing.B) {
	content := benchmarkContent(10 * 1024)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		splitSentences(content)
	}
}
