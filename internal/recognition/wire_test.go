package recognition

import (
	"image"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestEncodeDecodeResults(t *testing.T) {
	in := []Result{
		{Text: "Allow", Box: image.Rect(10, 20, 110, 60), Confidence: 0.93},
		{
			Text:       "Skip",
			Box:        image.Rect(0, 0, 40, 20),
			Points:     []image.Point{{0, 0}, {40, 0}, {40, 20}, {0, 20}},
			Confidence: 0.5,
		},
	}

	list, err := EncodeResults(in)
	if err != nil {
		t.Fatal(err)
	}
	out := DecodeResults(list)

	if len(out) != 2 {
		t.Fatalf("decoded %d results", len(out))
	}
	if out[0].Text != "Allow" || out[0].Box != in[0].Box || out[0].Confidence != 0.93 || out[0].Points != nil {
		t.Errorf("first = %+v", out[0])
	}
	if len(out[1].Points) != 4 || out[1].Points[2] != image.Pt(40, 20) {
		t.Errorf("points = %v", out[1].Points)
	}
	if out[1].Center() != in[1].Center() {
		t.Errorf("center %v, want %v", out[1].Center(), in[1].Center())
	}
}

func TestDecodeSkipsMalformedEntries(t *testing.T) {
	list, err := structpb.NewList([]any{
		"not a struct",
		map[string]any{"text": "ok", "x2": 10.0, "y2": 10.0, "points": []any{[]any{1.0}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out := DecodeResults(list)
	if len(out) != 1 || out[0].Text != "ok" || out[0].Points != nil {
		t.Errorf("decoded %+v", out)
	}
	if got := DecodeResults(nil); len(got) != 0 {
		t.Errorf("nil list decoded to %v", got)
	}
}
