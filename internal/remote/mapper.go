package remote

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	feed "github.com/eugener/feedcache/internal"
)

// mapItems decodes {"items":[{"id","description","location","image"}]}.
// Any malformed item rejects the whole payload.
func mapItems(body []byte) ([]feed.Image, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", feed.ErrInvalidData)
	}
	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: missing items array", feed.ErrInvalidData)
	}

	arr := items.Array()
	out := make([]feed.Image, 0, len(arr))
	for i, item := range arr {
		img, err := mapItem(item)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", feed.ErrInvalidData, i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func mapItem(item gjson.Result) (feed.Image, error) {
	if !item.IsObject() {
		return feed.Image{}, fmt.Errorf("not an object")
	}

	idField := item.Get("id")
	if idField.Type != gjson.String {
		return feed.Image{}, fmt.Errorf("id must be a string")
	}
	id, err := uuid.Parse(idField.Str)
	if err != nil {
		return feed.Image{}, fmt.Errorf("id: %w", err)
	}

	imageField := item.Get("image")
	if imageField.Type != gjson.String {
		return feed.Image{}, fmt.Errorf("image must be a string")
	}
	u, err := url.Parse(imageField.Str)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return feed.Image{}, fmt.Errorf("image %q is not an absolute URL", imageField.Str)
	}

	desc, err := optionalString(item, "description")
	if err != nil {
		return feed.Image{}, err
	}
	loc, err := optionalString(item, "location")
	if err != nil {
		return feed.Image{}, err
	}

	return feed.Image{ID: id, Description: desc, Location: loc, URL: imageField.Str}, nil
}

// optionalString treats a missing key and JSON null alike.
func optionalString(item gjson.Result, key string) (*string, error) {
	f := item.Get(key)
	switch f.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		s := f.Str
		return &s, nil
	default:
		return nil, fmt.Errorf("%s must be a string", key)
	}
}
