package metrics

import "sort"

// Result is the outcome of evaluating a predicted label assignment against
// ground truth, per spec.md §4.4.
type Result struct {
	Precision float64
	Recall    float64
	FMeasure  float64
	Skipped   int

	// ARI and VI are supplementary structural-agreement scores computed
	// over the same two partitions.
	ARI float64
	VI  float64
}

// Sample is one element's predicted label and ground-truth cluster id, the
// Go form of original_source/sumav/utils.py's element:cluster_id mapping.
type Sample struct {
	ID             string
	GroundTruth    string
	PredictedLabel string
}

// Evaluate implements spec.md §4.4: average pairwise precision, recall, and
// F-measure between a predicted label partition and ground truth, skipping
// samples with no predicted label. Grounded on
// original_source/sumav/utils.py's eval_precision_recall_fmeasure and
// tp_fp_fn.
func Evaluate(samples []Sample) Result {
	groundTruthOf := make(map[string]string, len(samples))
	predictedOf := make(map[string]string, len(samples))
	scored := make([]string, 0, len(samples))
	skipped := 0

	for _, s := range samples {
		if s.PredictedLabel == "" {
			skipped++
			continue
		}
		groundTruthOf[s.ID] = s.GroundTruth
		predictedOf[s.ID] = s.PredictedLabel
		scored = append(scored, s.ID)
	}

	if len(scored) == 0 {
		return Result{Skipped: skipped}
	}

	gtClusters := reverseIndex(groundTruthOf)
	predClusters := reverseIndex(predictedOf)

	var sumPrecision, sumRecall float64
	for _, id := range scored {
		correctSet := gtClusters[groundTruthOf[id]]
		guessSet := predClusters[predictedOf[id]]

		tp, fp, fn := tpFpFn(correctSet, guessSet)
		if tp+fp > 0 {
			sumPrecision += float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			sumRecall += float64(tp) / float64(tp+fn)
		}
	}

	n := float64(len(scored))
	precision := 100.0 * sumPrecision / n
	recall := 100.0 * sumRecall / n

	var fmeasure float64
	if precision+recall > 0 {
		fmeasure = (2 * precision * recall) / (precision + recall)
	}

	gtLabels, predLabels := labelsToInts(scored, groundTruthOf, predictedOf)

	return Result{
		Precision: precision,
		Recall:    recall,
		FMeasure:  fmeasure,
		Skipped:   skipped,
		ARI:       AdjustedRandIndex(predLabels, gtLabels),
		VI:        VariationOfInformation(predLabels, gtLabels),
	}
}

// tpFpFn counts true positives (elements in both sets), false positives
// (guessed but not correct), and false negatives (correct but not
// guessed), mirroring original_source/sumav/utils.py's tp_fp_fn.
func tpFpFn(correctSet, guessSet map[string]struct{}) (tp, fp, fn int) {
	for elem := range guessSet {
		if _, ok := correctSet[elem]; ok {
			tp++
		} else {
			fp++
		}
	}
	for elem := range correctSet {
		if _, ok := guessSet[elem]; !ok {
			fn++
		}
	}
	return tp, fp, fn
}

func reverseIndex(labelOf map[string]string) map[string]map[string]struct{} {
	rev := make(map[string]map[string]struct{})
	for id, label := range labelOf {
		if rev[label] == nil {
			rev[label] = make(map[string]struct{})
		}
		rev[label][id] = struct{}{}
	}
	return rev
}

// labelsToInts assigns a stable integer code to each distinct ground-truth
// and predicted label (sorted for determinism) so AdjustedRandIndex and
// VariationOfInformation, which operate on []int partitions, can run over
// sumav's string labels.
func labelsToInts(ids []string, groundTruthOf, predictedOf map[string]string) (gtLabels, predLabels []int) {
	gtCode := stableCodeMap(valuesOf(ids, groundTruthOf))
	predCode := stableCodeMap(valuesOf(ids, predictedOf))

	gtLabels = make([]int, len(ids))
	predLabels = make([]int, len(ids))
	for i, id := range ids {
		gtLabels[i] = gtCode[groundTruthOf[id]]
		predLabels[i] = predCode[predictedOf[id]]
	}
	return gtLabels, predLabels
}

func valuesOf(ids []string, m map[string]string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func stableCodeMap(values []string) map[string]int {
	seen := make(map[string]struct{}, len(values))
	distinct := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)

	code := make(map[string]int, len(distinct))
	for i, v := range distinct {
		code[v] = i
	}
	return code
}
