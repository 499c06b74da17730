package model

// Label is a class the classifiers were trained on. LabelUnknown covers any
// index the label table does not know about.
type Label int

const (
	LabelJerry Label = iota
	LabelTom
	LabelNeither
	LabelBoth
	LabelUnknown
)

var classNames = [...]string{"jerry", "tom", "tom_jerry_0", "tom_jerry_1"}

var displayNames = [...]string{"Jerry", "Tom", "Both not found", "Found both Tom & Jerry"}

// ClassNames returns the label table in output-vector order.
func ClassNames() []string {
	return classNames[:]
}

func LabelFromIndex(idx int) Label {
	if idx < 0 || idx >= len(classNames) {
		return LabelUnknown
	}
	return Label(idx)
}

func (l Label) String() string {
	if l < 0 || int(l) >= len(classNames) {
		return "unknown"
	}
	return classNames[l]
}

func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts any class name; unrecognised names become
// LabelUnknown.
func (l *Label) UnmarshalText(text []byte) error {
	*l = LabelUnknown
	for i, name := range classNames {
		if name == string(text) {
			*l = Label(i)
			break
		}
	}
	return nil
}

func (l Label) Display() string {
	if l < 0 || int(l) >= len(displayNames) {
		return "Unknown"
	}
	return displayNames[l]
}

// Layout is the memory order of the input tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      Layout   `json:"layout"`
}

// NewMetadata describes a batch-of-one RGB input of imageSize x imageSize
// and one probability per known class.
func NewMetadata(imageSize int, layout Layout) Metadata {
	size := int64(imageSize)
	input := []int64{1, size, size, 3}
	if layout == LayoutNCHW {
		input = []int64{1, 3, size, size}
	} else {
		layout = LayoutNHWC
	}
	return Metadata{
		InputShape:  input,
		OutputShape: []int64{1, int64(len(classNames))},
		Classes:     ClassNames(),
		ImageSize:   imageSize,
		Layout:      layout,
	}
}

// InputSize is the number of float32 values one input tensor holds.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

type Prediction struct {
	Model string `json:"model"`
	Index int    `json:"index"`
	Label Label  `json:"label"`
}

func (p Prediction) Display() string {
	return p.Label.Display()
}

// PredictionRequest carries an already preprocessed input tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResult struct {
	Model   string `json:"model"`
	Index   int    `json:"index"`
	Label   Label  `json:"label"`
	Display string `json:"display"`
}

type PredictionResponse struct {
	Filename    string             `json:"filename"`
	Predictions []PredictionResult `json:"predictions"`
}

func NewPredictionResponse(filename string, predictions []Prediction) PredictionResponse {
	results := make([]PredictionResult, len(predictions))
	for i, p := range predictions {
		results[i] = PredictionResult{Model: p.Model, Index: p.Index, Label: p.Label, Display: p.Display()}
	}
	return PredictionResponse{Filename: filename, Predictions: results}
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}
