package form

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"eyecheck-web/internal/predict"
)

const (
	SubmitLabelIdle    = "Analyze Image"
	SubmitLabelLoading = "Analyzing..."

	StatusClassHealthy  = "healthy"
	StatusClassDiseased = "diseased"
)

// View is everything the page needs, derived from State by Render.
type View struct {
	FileLabel      string      `json:"file_label"`
	SubmitLabel    string      `json:"submit_label"`
	SubmitDisabled bool        `json:"submit_disabled"`
	Loading        bool        `json:"loading"`
	PreviewPending bool        `json:"preview_pending"`
	Error          string      `json:"error,omitempty"`
	PreviewURL     string      `json:"preview_url,omitempty"`
	Result         *ResultView `json:"result,omitempty"`
}

type ResultView struct {
	Status        string            `json:"status"`
	StatusClass   string            `json:"status_class"`
	Class         string            `json:"class"`
	Confidence    string            `json:"confidence"`
	ModelType     string            `json:"model_type,omitempty"`
	Probabilities []ProbabilityView `json:"probabilities,omitempty"`
	Explanation   *Explanation      `json:"explanation,omitempty"`
}

type ProbabilityView struct {
	Label   string `json:"label"`
	Percent string `json:"percent"`
}

type Explanation struct {
	Status         string  `json:"status"`
	Classification string  `json:"classification"`
	Confidence     string  `json:"confidence"`
	Stages         []Stage `json:"stages"`
	Disclaimer     string  `json:"disclaimer"`
}

// NeedsRefresh reports whether background work is still pending for this
// view, so a page without scripting should reload.
func (v View) NeedsRefresh() bool {
	return v.Loading || v.PreviewPending
}

// Render is a pure function of the state.
func Render(s State) View {
	v := View{
		FileLabel:      s.FileName,
		SubmitDisabled: s.Loading || s.File == nil,
		SubmitLabel:    SubmitLabelIdle,
		Loading:        s.Loading,
		PreviewPending: s.PreviewPending,
		Error:          s.Error,
		PreviewURL:     s.PreviewURL,
	}
	if s.Loading {
		v.SubmitLabel = SubmitLabelLoading
	}
	if s.Result != nil {
		v.Result = renderResult(s.Result)
	}
	return v
}

func renderResult(r *predict.Result) *ResultView {
	rv := &ResultView{
		Status:      r.Status,
		StatusClass: StatusClassDiseased,
		Class:       r.Class,
		Confidence:  FormatPercent(r.Confidence),
		ModelType:   r.ModelType,
	}
	if r.Healthy() {
		rv.StatusClass = StatusClassHealthy
	}

	// the detailed section only exists when the service sent probabilities
	if r.AllProbabilities == nil {
		return rv
	}
	rv.Probabilities = make([]ProbabilityView, 0, len(r.AllProbabilities))
	for _, p := range r.AllProbabilities {
		rv.Probabilities = append(rv.Probabilities, ProbabilityView{
			Label:   p.Label,
			Percent: FormatPercent(p.Value),
		})
	}
	rv.Explanation = &Explanation{
		Status:         statusExplanation(r.Healthy()),
		Classification: ClassificationExplanation(r.Class),
		Confidence: fmt.Sprintf("The percentage (%s) represents how confident the system is in its diagnosis. "+
			"Higher percentages indicate greater confidence.", rv.Confidence),
		Stages:     Stages,
		Disclaimer: Disclaimer,
	}
	return rv
}

// FormatPercent renders a probability in [0,1] as a percentage with two
// decimals, e.g. 0.8734 -> "87.34%". Exact ties round away from zero, so
// 0.50625 -> "50.63%".
func FormatPercent(p float64) string {
	return toFixed(p*100, 2) + "%"
}

// exactPrec holds any float64 plus one half without rounding.
const exactPrec = 2200

// toFixed formats x with the given number of decimals, rounding the exact
// binary value of x half away from zero.
func toFixed(x float64, decimals int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', -1, 64)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	v := new(big.Float).SetPrec(exactPrec).SetFloat64(math.Abs(x))
	v.Mul(v, new(big.Float).SetPrec(exactPrec).SetInt(scale))
	v.Add(v, big.NewFloat(0.5))
	n, _ := v.Int(nil)

	digits := n.String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	out := digits
	if decimals > 0 {
		cut := len(digits) - decimals
		out = digits[:cut] + "." + digits[cut:]
	}
	if x < 0 {
		out = "-" + out
	}
	return out
}
