package botdispatch

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON reports an update payload or API response that is not JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector parses a raw payload once so updates can be classified and
// decoded field by field.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View provides tolerant, path-based field access over a decoded payload.
// Missing fields are reported through the boolean return rather than an
// error, which is what lets Decode stay total over unknown shapes.
type View interface {
	// HasField reports whether path is present, null included.
	HasField(path string) bool

	// GetString, GetInt and GetBool return the value at path; ok is false
	// when path is absent or holds another JSON type.
	GetString(path string) (string, bool)
	GetInt(path string) (int64, bool)
	GetBool(path string) (bool, bool)

	// GetBytes returns the undecoded JSON at path, quotes included for
	// strings.
	GetBytes(path string) ([]byte, bool)

	// Object returns a View rooted at path, or false if path is not an object.
	Object(path string) (View, bool)

	// Array returns one View per element of the array at path, or false
	// if path is not an array.
	Array(path string) ([]View, bool)
}

// JSONInspector returns the gjson-backed Inspector used by Decode.
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{res: gjson.ParseBytes(raw)}, nil
}

type jsonView struct {
	res gjson.Result
}

// get resolves path relative to the view; an empty path is the view itself.
func (v jsonView) get(path string) gjson.Result {
	if path == "" {
		return v.res
	}
	return v.res.Get(path)
}

func (v jsonView) HasField(path string) bool { return v.get(path).Exists() }

func (v jsonView) GetString(path string) (string, bool) {
	r := v.get(path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetInt(path string) (int64, bool) {
	r := v.get(path)
	if !r.Exists() || r.Type != gjson.Number {
		return 0, false
	}
	return r.Int(), true
}

func (v jsonView) GetBool(path string) (bool, bool) {
	r := v.get(path)
	if !r.Exists() || !r.IsBool() {
		return false, false
	}
	return r.Bool(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	if r := v.get(path); r.Exists() {
		return []byte(r.Raw), true
	}
	return nil, false
}

func (v jsonView) Object(path string) (View, bool) {
	r := v.get(path)
	if !r.IsObject() {
		return nil, false
	}
	return jsonView{res: r}, true
}

func (v jsonView) Array(path string) ([]View, bool) {
	r := v.get(path)
	if !r.IsArray() {
		return nil, false
	}
	elems := r.Array()
	out := make([]View, 0, len(elems))
	for _, e := range elems {
		out = append(out, jsonView{res: e})
	}
	return out, true
}
