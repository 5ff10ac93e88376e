package training

import (
	"slices"

	"drink-detector/internal/models"
)

// Evaluate scores predictions against the truth for every class seen in
// either slice. Ratios with a zero denominator are reported as 0.
func Evaluate(truth, pred []int) models.Report {
	classes := slices.Concat(truth, pred)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	report := models.Report{
		Classes:  make(map[int]models.ClassMetrics, len(classes)),
		TestSize: len(truth),
	}
	if len(truth) == 0 {
		return report
	}

	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(truth))

	for _, c := range classes {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case truth[i] == c && pred[i] == c:
				tp++
			case truth[i] != c && pred[i] == c:
				fp++
			case truth[i] == c && pred[i] != c:
				fn++
			}
		}

		m := models.ClassMetrics{
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   tp + fn,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes[c] = m

		k := float64(len(classes))
		report.MacroAvg.Precision += m.Precision / k
		report.MacroAvg.Recall += m.Recall / k
		report.MacroAvg.F1 += m.F1 / k

		w := float64(m.Support) / float64(len(truth))
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1 += m.F1 * w
	}
	report.MacroAvg.Support = len(truth)
	report.WeightedAvg.Support = len(truth)

	return report
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
