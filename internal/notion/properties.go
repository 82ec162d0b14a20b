package notion

import (
	"github.com/jomei/notionapi"

	"github.com/robsonferreira/tasksync/internal/task"
)

// Properties builds the page properties for f: title → title property,
// status → status property, priority → select property. Options are
// addressed by their display label.
func (s Schema) Properties(f task.Fields) notionapi.Properties {
	return notionapi.Properties{
		s.Title: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Text: &notionapi.Text{Content: f.Title}},
			},
		},
		s.Status: notionapi.StatusProperty{
			Type:   notionapi.PropertyTypeStatus,
			Status: notionapi.Status{Name: f.Status.Label()},
		},
		s.Priority: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: f.Priority.Label()},
		},
	}
}
