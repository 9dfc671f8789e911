package dashboard

import (
	"bytes"
	"encoding/json"
	"strconv"

	"my-page/internal/model"
)

// Parsers never fail on a missing or oddly typed field; the payload field is
// left empty. Only a body that is not JSON at all is an error.

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// field walks nested objects by key and yields nil when any step is not an object.
func field(v any, path ...string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func num(v any) int {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

func parseCat(body []byte) (any, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	var out model.CatImage
	if list, ok := v.([]any); ok && len(list) > 0 {
		first := list[0]
		out = model.CatImage{Image: str(field(first, "url")), Width: num(field(first, "width")), Height: num(field(first, "height"))}
	}
	return out, nil
}

func parseAnime(body []byte) (any, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	return model.AnimeQuote{
		Quote:     str(field(v, "data", "content")),
		Anime:     str(field(v, "data", "anime", "name")),
		Character: str(field(v, "data", "character", "name")),
	}, nil
}

func parseNasa(body []byte) (any, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	return model.NasaPhoto{
		Title:       str(field(v, "title")),
		Explanation: str(field(v, "explanation")),
		URL:         str(field(v, "url")),
		HDURL:       str(field(v, "hdurl")),
		Date:        str(field(v, "date")),
		Copyright:   str(field(v, "copyright")),
	}, nil
}

func parseHistory(body []byte) (any, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	return model.HistoryToday{
		Title:    str(field(v, "title")),
		Year:     model.LooseString(str(field(v, "y"))),
		Month:    model.LooseString(str(field(v, "m"))),
		Day:      model.LooseString(str(field(v, "d"))),
		Keywords: str(field(v, "words")),
		URL:      str(field(v, "url")),
	}, nil
}

func parseQuote(body []byte) (any, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	return model.Quote{Message: str(field(v, "msg"))}, nil
}
