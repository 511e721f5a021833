package classifier

import (
	"math"
	"sort"
)

type IntentMetrics struct {
	Support   int     `json:"support"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ThresholdPoint is the outcome of accepting only predictions at or above Threshold.
type ThresholdPoint struct {
	Threshold float64 `json:"threshold"`
	Accepted  int     `json:"accepted"`
	Coverage  float64 `json:"coverage"`
	Accuracy  float64 `json:"accuracy"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	// Score weighs accepted accuracy 0.6, coverage 0.3 and F1 0.1.
	Score float64 `json:"score"`
}

type EvalReport struct {
	Samples   int                       `json:"samples"`
	Accuracy  float64                   `json:"accuracy"`
	MeanConf  float64                   `json:"mean_confidence"`
	PerIntent map[string]IntentMetrics  `json:"per_intent"`
	Confusion map[string]map[string]int `json:"confusion"`
	Sweep     []ThresholdPoint          `json:"sweep"`
}

type prediction struct {
	truth, predicted string
	confidence       float64
}

// Evaluate scores the classifier on labelled samples and sweeps acceptance thresholds 0.10 to 0.95.
func Evaluate(c *Classifier, samples []Sample) (EvalReport, error) {
	labels := c.Labels()
	preds := make([]prediction, 0, len(samples))
	for _, s := range samples {
		res, err := c.Classify(s.Text)
		if err != nil {
			return EvalReport{}, err
		}
		top := argmax(res.Distribution)
		preds = append(preds, prediction{truth: s.Label, predicted: labels[top], confidence: res.Distribution[top]})
	}
	return summarize(labels, preds), nil
}

func summarize(labels []string, preds []prediction) EvalReport {
	report := EvalReport{
		Samples:   len(preds),
		PerIntent: make(map[string]IntentMetrics, len(labels)),
		Confusion: make(map[string]map[string]int),
	}
	if len(preds) == 0 {
		return report
	}

	tp := map[string]int{}
	predicted := map[string]int{}
	support := map[string]int{}
	correct := 0
	var confSum float64
	for _, p := range preds {
		support[p.truth]++
		predicted[p.predicted]++
		confSum += p.confidence
		if report.Confusion[p.truth] == nil {
			report.Confusion[p.truth] = map[string]int{}
		}
		report.Confusion[p.truth][p.predicted]++
		if p.truth == p.predicted {
			tp[p.truth]++
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(preds))
	report.MeanConf = confSum / float64(len(preds))

	for _, l := range labels {
		m := IntentMetrics{Support: support[l]}
		if predicted[l] > 0 {
			m.Precision = float64(tp[l]) / float64(predicted[l])
		}
		if support[l] > 0 {
			m.Recall = float64(tp[l]) / float64(support[l])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.PerIntent[l] = m
	}

	for step := 10; step <= 95; step += 5 {
		th := float64(step) / 100
		pt := ThresholdPoint{Threshold: th}
		ok := 0
		for _, p := range preds {
			if p.confidence >= th {
				pt.Accepted++
				if p.truth == p.predicted {
					ok++
				}
			}
		}
		pt.Coverage = float64(pt.Accepted) / float64(len(preds))
		pt.Recall = float64(ok) / float64(len(preds))
		if pt.Accepted > 0 {
			pt.Accuracy = float64(ok) / float64(pt.Accepted)
		}
		if pt.Accuracy+pt.Recall > 0 {
			pt.F1 = 2 * pt.Accuracy * pt.Recall / (pt.Accuracy + pt.Recall)
		}
		pt.Score = 0.6*pt.Accuracy + 0.3*pt.Coverage + 0.1*pt.F1
		report.Sweep = append(report.Sweep, pt)
	}
	return report
}

// BestThreshold picks the sweep point with the highest Score; ties keep the lower threshold.
func (r EvalReport) BestThreshold() (ThresholdPoint, bool) {
	if len(r.Sweep) == 0 {
		return ThresholdPoint{}, false
	}
	points := append([]ThresholdPoint(nil), r.Sweep...)
	sort.SliceStable(points, func(i, j int) bool {
		si, sj := points[i].Score, points[j].Score
		if math.Abs(si-sj) > 1e-12 {
			return si > sj
		}
		return points[i].Threshold < points[j].Threshold
	})
	return points[0], true
}
