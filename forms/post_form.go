package forms

import "strings"

// AddPostForm binds the post creation form. The image is read separately from the
// multipart request since it is optional.
type AddPostForm struct {
	Title    string `form:"title" validate:"required,max=255"`
	Body     string `form:"body" validate:"required"`
	Category uint   `form:"category" validate:"required,gt=0"`
	Tags     string `form:"tags" validate:"max=500,tagtitles"`
}

// MaxTagTitleLength matches the size of the stored tag title.
const MaxTagTitleLength = 128

func (f *AddPostForm) Clean() {
	f.Title = strings.TrimSpace(f.Title)
	f.Body = strings.TrimSpace(f.Body)
	f.Tags = strings.TrimSpace(f.Tags)
}

// TagTitles splits the comma separated tag field into trimmed, non-empty titles.
func (f *AddPostForm) TagTitles() []string {
	return splitTags(f.Tags)
}

func splitTags(raw string) []string {
	var titles []string
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}
