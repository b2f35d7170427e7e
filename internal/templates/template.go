// Package templates stores reusable notification templates.
//
// Templates are kept as one ordered JSON array under a single key of a
// storage.Store. The whole list is rewritten on every change; records are
// never edited in place.
package templates

// StorageKey is the key holding the serialized template list.
const StorageKey = "SavedTemplates"

// Template is a saved (title, body) pair used to prefill a notification.
//
// The body is persisted under the "content" key.
type Template struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"content"`
}

// Add returns a copy of current with a new template appended.
// The new id is one greater than the largest existing id (1 when empty).
func Add(current []Template, title, body string) []Template {
	out := make([]Template, 0, len(current)+1)
	out = append(out, current...)
	return append(out, Template{ID: NextID(current), Title: title, Body: body})
}

// Delete returns a copy of current without any template whose id matches.
// An unknown id is a no-op.
func Delete(current []Template, id int) []Template {
	out := make([]Template, 0, len(current))
	for _, t := range current {
		if t.ID == id {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NextID returns max(id)+1, or 1 for an empty list.
func NextID(current []Template) int {
	maxID := 0
	for _, t := range current {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID + 1
}

// Find returns the template with the given id.
func Find(current []Template, id int) (Template, bool) {
	for _, t := range current {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
