package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{}, &Category{}, &Tag{}, &Post{}, &Comment{}, &Reply{}, &PageView{},
	}
}
