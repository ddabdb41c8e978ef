package store

import (
	"slices"
	"strings"
)

// knownClasses is the COCO class list understood by the detection models.
var knownClasses = map[string]bool{}

func init() {
	for _, c := range []string{
		"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
		"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
		"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
		"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
		"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
		"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
		"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard",
		"cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
		"scissors", "teddy bear", "hair drier", "toothbrush",
	} {
		knownClasses[c] = true
	}
}

type sceneRule struct {
	keywords []string
	classes  []string
}

var sceneRules = []sceneRule{
	{[]string{"street", "road", "highway", "parking", "crosswalk", "driveway"},
		[]string{"car", "bus", "truck", "bicycle", "motorcycle", "traffic light", "stop sign"}},
	{[]string{"station", "platform"},
		[]string{"bench", "backpack", "suitcase", "handbag"}},
	{[]string{"airport", "airfield"},
		[]string{"airplane", "suitcase", "handbag"}},
	{[]string{"living_room", "lounge", "waiting_room", "lobby"},
		[]string{"chair", "couch", "potted plant", "tv", "book", "clock", "vase", "cat", "dog"}},
	{[]string{"kitchen", "diner", "restaurant", "bar"},
		[]string{"bottle", "cup", "bowl", "fork", "knife", "spoon", "wine glass", "chair", "dining table"}},
	{[]string{"kitchen"},
		[]string{"microwave", "oven", "toaster", "sink", "refrigerator"}},
	{[]string{"bedroom", "dorm"},
		[]string{"bed", "clock", "book", "cell phone", "teddy bear"}},
	{[]string{"bathroom", "shower"},
		[]string{"toilet", "sink", "toothbrush", "hair drier"}},
	{[]string{"office", "computer", "studio"},
		[]string{"chair", "laptop", "mouse", "keyboard", "book", "cell phone", "scissors"}},
	{[]string{"ball", "field", "stadium", "court"},
		[]string{"sports ball", "baseball bat", "baseball glove", "tennis racket"}},
	{[]string{"park", "garden"},
		[]string{"bench", "bird", "dog", "bicycle", "frisbee", "kite"}},
	{[]string{"zoo", "farm", "stable"},
		[]string{"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe"}},
}

// SuggestClasses guesses which detection classes matter in a scene from
// keywords in its name. "person" is always included. The result is sorted.
func SuggestClasses(scene string) []string {
	scene = strings.ReplaceAll(strings.ToLower(scene), "/", "_")

	set := map[string]bool{"person": true}
	for _, rule := range sceneRules {
		if !containsAny(scene, rule.keywords) {
			continue
		}
		for _, c := range rule.classes {
			set[c] = true
		}
	}

	isStation := strings.Contains(scene, "station") || strings.Contains(scene, "platform")
	if isStation && (strings.Contains(scene, "train") || strings.Contains(scene, "subway")) {
		set["train"] = true
	}
	if isStation && strings.Contains(scene, "bus") {
		set["bus"] = true
	}

	out := make([]string, 0, len(set))
	for c := range set {
		if knownClasses[c] {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
