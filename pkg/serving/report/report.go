// Package report renders an assessment as plain text for terminals and the
// text variant of the HTTP API.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/pipeline"
)

const (
	ChartTitle   = "Feature Contributions (SHAP)"
	DefaultWidth = 40
)

// BarChart ranks features by absolute contribution and draws one bar per
// feature, scaled so the largest contribution spans width cells. Bars that
// raise the risk are drawn with '+', bars that lower it with '-'.
func BarChart(attribution explain.Result, aligned features.AlignedRecord, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	ranked := attribution.Ranked()
	values := aligned.Map()

	labels := make([]string, len(ranked))
	labelWidth := 0
	largest := 0.0
	for i, c := range ranked {
		labels[i] = c.Feature
		if v, ok := values[c.Feature]; ok {
			labels[i] = fmt.Sprintf("%s = %s", c.Feature, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if len(labels[i]) > labelWidth {
			labelWidth = len(labels[i])
		}
		largest = math.Max(largest, math.Abs(c.Value))
	}

	var b strings.Builder
	for i, c := range ranked {
		fmt.Fprintf(&b, "%-*s %+.4f |%s\n", labelWidth, labels[i], c.Value, bar(c.Value, largest, width))
	}
	fmt.Fprintf(&b, "%-*s %+.4f\n", labelWidth, "base value", attribution.BaseValue)
	return b.String()
}

func bar(value, largest float64, width int) string {
	if largest == 0 || value == 0 {
		return ""
	}
	cells := int(math.Round(math.Abs(value) / largest * float64(width)))
	if cells == 0 {
		cells = 1
	}
	if value > 0 {
		return strings.Repeat("+", cells)
	}
	return strings.Repeat("-", cells)
}

// Render writes the prediction summary followed by the attribution chart.
func Render(w io.Writer, result pipeline.Result, width int) error {
	if _, err := fmt.Fprintf(w, "Prediction: %s\n", result.Prediction.Summary()); err != nil {
		return err
	}
	if len(result.Aligned.Defaulted) > 0 {
		if _, err := fmt.Fprintf(w, "Filled with 0: %s\n", strings.Join(result.Aligned.Defaulted, ", ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n%s", ChartTitle, BarChart(result.Attribution, result.Aligned, width))
	return err
}
