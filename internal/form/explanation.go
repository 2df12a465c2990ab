package form

// Stage is one entry of the diabetic retinopathy glossary shown under a result.
type Stage struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

const (
	healthyStatusText  = "Your eye appears to be healthy with no signs of diabetic retinopathy."
	diseasedStatusText = "Your eye shows signs that may indicate diabetic retinopathy."

	// Disclaimer closes every explanation block.
	Disclaimer = "This is for educational purposes only. Always consult with a healthcare professional for proper diagnosis and treatment."
)

var classificationExplanations = map[string]string{
	"No DR":            "No Diabetic Retinopathy detected. Your eye appears healthy with no signs of damage to the blood vessels in the retina.",
	"Mild DR":          "Mild Diabetic Retinopathy detected. This is an early stage with small areas of balloon-like swelling in the retina's tiny blood vessels. Regular monitoring is recommended.",
	"Moderate DR":      "Moderate Diabetic Retinopathy detected. At this stage, more blood vessels are blocked, decreasing blood supply to areas of the retina. This may begin to affect vision.",
	"Severe DR":        "Severe Diabetic Retinopathy detected. Many blood vessels are blocked, causing areas of the retina to be deprived of blood supply. This can lead to significant vision problems.",
	"Proliferative DR": "Proliferative Diabetic Retinopathy detected. This is the most advanced stage where new, fragile blood vessels grow in the retina. These can leak blood and cause severe vision problems or blindness if untreated.",
}

// Stages lists the five grades in severity order.
var Stages = []Stage{
	{Label: "No DR", Description: "A healthy eye with no signs of diabetic retinopathy."},
	{Label: "Mild DR", Description: "Early stage with small areas of balloon-like swelling in the retina's blood vessels."},
	{Label: "Moderate DR", Description: "More blood vessels are blocked, decreasing blood supply to areas of the retina."},
	{Label: "Severe DR", Description: "Many blood vessels are blocked, causing areas of the retina to be deprived of blood supply."},
	{Label: "Proliferative DR", Description: "The most advanced stage where new, fragile blood vessels grow in the retina and can leak blood."},
}

// ClassificationExplanation returns the explanation for a class label.
// Unknown labels get a generic pointer to a healthcare professional.
func ClassificationExplanation(label string) string {
	if text, ok := classificationExplanations[label]; ok {
		return text
	}
	return label + " - Please consult with a healthcare professional for more information about this classification."
}

func statusExplanation(healthy bool) string {
	if healthy {
		return healthyStatusText
	}
	return diseasedStatusText
}
