package usecase

// UnknownLabel is reported for classes missing from the label map.
const UnknownLabel = "Unknown"

// LabelMap translates raw model classes into human readable descriptions.
type LabelMap map[string]string

// DefaultLabels returns the descriptions for the pink-eye goat model.
func DefaultLabels() LabelMap {
	return LabelMap{
		"pink-eye": "Mata Terjangkit PinkEye",
		"normal":   "Mata Terlihat Sehat",
	}
}

// Describe returns the description for class or UnknownLabel.
func (m LabelMap) Describe(class string) string {
	if label, ok := m[class]; ok {
		return label
	}
	return UnknownLabel
}
