// Package models - Class label sets for detection models.
package models

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is an ordered list of labels indexed by class.
type OutputClassSet struct {
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a class set from names in class-index order.
func NewOutputClassSet(names []string) *OutputClassSet {
	s := &OutputClassSet{Classes: make([]OutputClass, len(names))}
	for i, name := range names {
		s.Classes[i] = OutputClass{Index: i, Name: name}
	}
	s.buildNameIndexMap()
	return s
}

func (s *OutputClassSet) buildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		if _, ok := s.nameToIdx[c.Name]; !ok {
			s.nameToIdx[c.Name] = c.Index
		}
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int { return len(s.Classes) }

// Names returns a copy of the class names in index order.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Name returns the class name for an index.
func (s *OutputClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("index %d out of range for %d classes", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}

// Index returns the class index for a name.
func (s *OutputClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found", name)
	}
	return idx, nil
}

// ParseLabels splits a label file into class names, one per line.
//
// Empty lines are dropped and Windows line endings are tolerated, so a
// trailing newline does not produce an extra class.
func ParseLabels(text string) []string {
	lines := strings.Split(text, "\n")
	labels := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	return labels
}

// LoadLabels reads a newline separated label file.
//
// Arguments:
//   - path: Path to the label file.
//
// Returns:
//   - *OutputClassSet: The labels in file order.
//   - error: An error if the file cannot be read or holds no labels.
func LoadLabels(path string) (*OutputClassSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read label file %s", path)
	}
	labels := ParseLabels(string(data))
	if len(labels) == 0 {
		return nil, errors.Errorf("label file %s is empty", path)
	}
	return NewOutputClassSet(labels), nil
}

// YOLOClasses is the 80 COCO classes with zero-based indices, as used by
// YOLO-family models.
var YOLOClasses = NewOutputClassSet([]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
})
