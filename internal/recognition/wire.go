package recognition

import (
	"image"

	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC service shape shared by grpcclient and grpcserver. Messages are
// protobuf well-known types so no generated stubs are needed.
const (
	ServiceName            = "ocrwatch.v1.Recognizer"
	RecognizeMethodName    = "Recognize"
	SetThresholdMethodName = "SetConfidenceThreshold"
	RecognizeMethod        = "/" + ServiceName + "/" + RecognizeMethodName
	SetThresholdMethod     = "/" + ServiceName + "/" + SetThresholdMethodName
)

// EncodeResults converts results to a structpb list for the wire.
func EncodeResults(results []Result) (*structpb.ListValue, error) {
	items := make([]any, 0, len(results))
	for _, r := range results {
		item := map[string]any{
			"text":       r.Text,
			"confidence": r.Confidence,
			"x1":         float64(r.Box.Min.X),
			"y1":         float64(r.Box.Min.Y),
			"x2":         float64(r.Box.Max.X),
			"y2":         float64(r.Box.Max.Y),
		}
		if len(r.Points) > 0 {
			pts := make([]any, 0, len(r.Points))
			for _, p := range r.Points {
				pts = append(pts, []any{float64(p.X), float64(p.Y)})
			}
			item["points"] = pts
		}
		items = append(items, item)
	}
	return structpb.NewList(items)
}

// DecodeResults is the inverse of EncodeResults. Entries that are not structs are skipped.
func DecodeResults(list *structpb.ListValue) []Result {
	results := make([]Result, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		f := s.GetFields()
		num := func(key string) int { return int(f[key].GetNumberValue()) }

		r := Result{
			Text:       f["text"].GetStringValue(),
			Confidence: f["confidence"].GetNumberValue(),
			Box:        image.Rect(num("x1"), num("y1"), num("x2"), num("y2")),
		}
		for _, p := range f["points"].GetListValue().GetValues() {
			xy := p.GetListValue().GetValues()
			if len(xy) != 2 {
				continue
			}
			r.Points = append(r.Points, image.Pt(int(xy[0].GetNumberValue()), int(xy[1].GetNumberValue())))
		}
		results = append(results, r)
	}
	return results
}
